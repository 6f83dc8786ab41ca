package production

import (
	"context"
	"os/signal"
	"syscall"

	logger "github.com/sirupsen/logrus"

	"algoengine/src/commands"
	"algoengine/src/database"
	"algoengine/src/horizon"
	"algoengine/src/portfolio"
	"algoengine/src/production"
	"algoengine/src/queue"
	"algoengine/src/repository"
	"algoengine/src/server"
)

type Production struct {
	Log *logger.Entry
}

// Start runs a portfolio live until SIGINT or SIGTERM.
func (p *Production) Start(portfolioName string) error {
	selected, err := portfolio.ByName(portfolioName)
	if err != nil {
		return err
	}

	db, err := database.Connect(database.GetConfig())
	if err != nil {
		return err
	}
	repo := repository.NewKlineRepository(db)

	commandsQueue := queue.New()
	eventsQueue := queue.New()

	worker := commands.NewWorker(commandsQueue, horizon.NewClient(horizon.GetConfig()))
	worker.Start()

	serverConfig := server.GetConfig()

	service, err := production.New(production.Options{
		Portfolio:  selected,
		Commands:   commandsQueue,
		Events:     eventsQueue,
		Repository: repo,
		ServerPort: serverConfig.Port,
		APIToken:   serverConfig.APIToken,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := service.Run(ctx); err != nil {
		return err
	}

	worker.Wait()

	p.Log.Info("Production run stopped")

	return nil
}

package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/mongo"

	dig_container "github.com/trezcool/hostelmess/apps/api/di/dig"
	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/billing"
	"github.com/trezcool/hostelmess/core/user"
	mongodb "github.com/trezcool/hostelmess/storage/database/mongo"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	c := dig_container.New()

	var exitCode int
	errAndDie(c.Invoke(func(
		conf *core.Config,
		client *mongo.Client,
		db *mongo.Database,
		usrSvc *user.Service,
		billSvc *billing.Service,
		validate *validator.Validate,
	) {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), conf.Database.Timeout)
			defer cancel()
			_ = client.Disconnect(ctx)
		}()

		cli := commandLine{
			usrSvc:   usrSvc,
			billSvc:  billSvc,
			validate: validate,
			ensureIndexes: func(ctx context.Context) error {
				return mongodb.EnsureIndexes(ctx, db)
			},
		}
		if err := cli.run(os.Args); err != nil {
			if err != errHelp && err != flag.ErrHelp {
				logger.Printf("\nerror: %s\n", err)
			}
			exitCode = 1
		}
	}))
	os.Exit(exitCode)
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

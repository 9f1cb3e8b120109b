package main

import (
	"context"
	"fmt"

	"github.com/trezcool/hostelmess/core/billing"
)

func (cli *commandLine) migrate() error {
	if err := cli.ensureIndexes(context.Background()); err != nil {
		return err
	}
	fmt.Println("indexes up to date")
	return nil
}

func (cli *commandLine) generateBills(month, year int) error {
	req := billing.GenerateRequest{Month: month, Year: year}
	if err := req.Validate(cli.validate); err != nil {
		return err
	}
	run, err := cli.billSvc.Generate(context.Background(), billing.SystemUser, req)
	if err != nil {
		return err
	}
	fmt.Printf("%02d/%d: %d generated, %d skipped, %d failed\n", run.Month, run.Year, len(run.Bills), run.Skipped, len(run.Failed))
	for _, f := range run.Failed {
		fmt.Printf("  %s: %s\n", f.StudentID, f.Error)
	}
	return nil
}

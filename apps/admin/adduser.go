package main

import (
	"context"
	"fmt"

	"github.com/trezcool/hostelmess/core/user"
)

// addUser validates and creates a user.User
func (cli *commandLine) addUser(nu user.NewUser) error {
	ctx := context.Background()
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Printf("created %s %q (%s)\n", usr.Role, usr.Email, usr.ID)
	return nil
}

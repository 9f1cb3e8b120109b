package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/hostelmess/core/billing"
	"github.com/trezcool/hostelmess/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	usrSvc        *user.Service
	billSvc       *billing.Service
	validate      *validator.Validate
	ensureIndexes func(ctx context.Context) error
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -email EMAIL -name NAME -role student|manager|admin [-room ROOM] - create a user")
	fmt.Println("  migrate - create the database indexes")
	fmt.Println("  generatebills -month MONTH -year YEAR - generate the bills of a month")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRole := addUserCmd.String("role", user.RoleStudent, "One of student, manager or admin.")
	addUserRoom := addUserCmd.String("room", "", "The student's room number.")

	genBillsCmd := flag.NewFlagSet("generatebills", flag.ContinueOnError)
	genBillsMonth := genBillsCmd.Int("month", 0, "The billed month (1-12).")
	genBillsYear := genBillsCmd.Int("year", 0, "The billed year.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(user.NewUser{
			Name:       *addUserName,
			Email:      *addUserEmail,
			Role:       *addUserRole,
			RoomNumber: *addUserRoom,
			Password:   string(pwd),
		})
	case "migrate":
		return cli.migrate()
	case "generatebills":
		if err := genBillsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *genBillsMonth == 0 || *genBillsYear == 0 {
			genBillsCmd.Usage()
			return errHelp
		}
		return cli.generateBills(*genBillsMonth, *genBillsYear)
	default:
		cli.printUsage()
		return errHelp
	}
}

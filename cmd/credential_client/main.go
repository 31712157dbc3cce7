package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/credential-registry-client/cmd/flags"
	"github.com/ruteri/credential-registry-client/dapp"
)

var (
	flagAddress = &cli.StringFlag{Name: "address", Required: true, Usage: "institution address"}
	flagName    = &cli.StringFlag{Name: "name", Required: true, Usage: "institution name"}
	flagCode    = &cli.StringFlag{Name: "code", Required: true, Usage: "9-digit institution code"}

	flagStudentID = &cli.StringFlag{Name: "student-id", Required: true, Usage: "numeric student id"}
	flagSchoolID  = &cli.StringFlag{Name: "school-id", Required: true, Usage: "numeric school id"}

	flagFile = &cli.StringFlag{Name: "file", Usage: "credential document to hash"}
	flagHash = &cli.StringFlag{Name: "hash", Usage: "hex SHA-256 of the credential document"}
	flagCID  = &cli.StringFlag{Name: "cid", Usage: "IPFS CID of the credential document"}
	flagPin  = &cli.BoolFlag{Name: "pin", Usage: "pin --file before storing the credential"}

	flagStudentName      = &cli.StringFlag{Name: "student-name", Required: true}
	flagDateOfBirth      = &cli.StringFlag{Name: "date-of-birth", Required: true, Usage: "YYYY-MM-DD"}
	flagInstitutionName  = &cli.StringFlag{Name: "institution-name", Required: true}
	flagCertificateTitle = &cli.StringFlag{Name: "certificate-title", Required: true}
	flagIssueDate        = &cli.StringFlag{Name: "issue-date", Required: true, Usage: "YYYY-MM-DD"}
	flagExpiryDate       = &cli.StringFlag{Name: "expiry-date", Usage: "YYYY-MM-DD, empty for no expiry"}
)

var errOperationFailed = errors.New("operation failed")

func main() {
	app := &cli.App{
		Name:  "credential-client",
		Usage: "Register institutions and issue, search, revoke and verify credentials",
		Flags: append(append([]cli.Flag{flags.LogServiceFlagFn("credential-client")}, flags.LogFlags...), flags.ClientFlags...),
		Commands: []*cli.Command{
			{
				Name:  "session",
				Usage: "connect the wallet and show the session",
				Action: withClient(func(cCtx *cli.Context, app *dapp.App) dapp.Result {
					return app.Connect(cCtx.Context)
				}, false),
			},
			{
				Name:  "register-institution",
				Usage: "register an institution (contract owner only)",
				Flags: []cli.Flag{flagAddress, flagName, flagCode},
				Action: withClient(func(cCtx *cli.Context, app *dapp.App) dapp.Result {
					return app.RegisterInstitution(cCtx.Context, dapp.RegisterInstitutionForm{
						Address: cCtx.String(flagAddress.Name),
						Name:    cCtx.String(flagName.Name),
						Code:    cCtx.String(flagCode.Name),
					})
				}, true),
			},
			{
				Name:  "check-institution",
				Usage: "show whether an address is a registered institution",
				Flags: []cli.Flag{flagAddress},
				Action: withClient(func(cCtx *cli.Context, app *dapp.App) dapp.Result {
					return app.CheckInstitution(cCtx.Context, dapp.InstitutionForm{Address: cCtx.String(flagAddress.Name)})
				}, true),
			},
			{
				Name:  "institution",
				Usage: "show institution details",
				Flags: []cli.Flag{flagAddress},
				Action: withClient(func(cCtx *cli.Context, app *dapp.App) dapp.Result {
					return app.InstitutionDetails(cCtx.Context, dapp.InstitutionForm{Address: cCtx.String(flagAddress.Name)})
				}, true),
			},
			{
				Name:  "institutions",
				Usage: "list registered institutions",
				Action: withClient(func(cCtx *cli.Context, app *dapp.App) dapp.Result {
					return app.ListInstitutions(cCtx.Context)
				}, true),
			},
			{
				Name:      "hash",
				Usage:     "compute the SHA-256 of a document",
				ArgsUsage: "<file>",
				Action: withClient(func(cCtx *cli.Context, app *dapp.App) dapp.Result {
					return app.SelectDocumentFile(cCtx.Context, cCtx.Args().First())
				}, false),
			},
			{
				Name:      "upload",
				Usage:     "pin a document to IPFS",
				ArgsUsage: "<file>",
				Action: withClient(func(cCtx *cli.Context, app *dapp.App) dapp.Result {
					if result := app.SelectDocumentFile(cCtx.Context, cCtx.Args().First()); !result.OK() {
						return result
					}
					return app.UploadDocument(cCtx.Context)
				}, false),
			},
			{
				Name:  "store",
				Usage: "store a credential (registered institutions only)",
				Flags: []cli.Flag{flagStudentID, flagSchoolID, flagStudentName, flagDateOfBirth, flagInstitutionName,
					flagCertificateTitle, flagIssueDate, flagExpiryDate, flagFile, flagHash, flagCID, flagPin},
				Action: withClient(func(cCtx *cli.Context, app *dapp.App) dapp.Result {
					if path := cCtx.String(flagFile.Name); path != "" {
						if result := app.SelectDocumentFile(cCtx.Context, path); !result.OK() {
							return result
						}
						if cCtx.Bool(flagPin.Name) {
							if result := app.UploadDocument(cCtx.Context); !result.OK() {
								return result
							}
						}
					}
					return app.StoreCredential(cCtx.Context, dapp.StoreCredentialForm{
						StudentID:        cCtx.String(flagStudentID.Name),
						SchoolID:         cCtx.String(flagSchoolID.Name),
						StudentName:      cCtx.String(flagStudentName.Name),
						DateOfBirth:      cCtx.String(flagDateOfBirth.Name),
						InstitutionName:  cCtx.String(flagInstitutionName.Name),
						CertificateTitle: cCtx.String(flagCertificateTitle.Name),
						IssueDate:        cCtx.String(flagIssueDate.Name),
						ExpiryDate:       cCtx.String(flagExpiryDate.Name),
						DocumentHash:     cCtx.String(flagHash.Name),
						IPFSCid:          cCtx.String(flagCID.Name),
					})
				}, true),
			},
			{
				Name:  "search",
				Usage: "show a stored credential",
				Flags: []cli.Flag{flagStudentID, flagSchoolID},
				Action: withClient(func(cCtx *cli.Context, app *dapp.App) dapp.Result {
					return app.SearchCredential(cCtx.Context, credentialKey(cCtx))
				}, true),
			},
			{
				Name:  "revoke",
				Usage: "revoke a credential (issuing institution or owner only)",
				Flags: []cli.Flag{flagStudentID, flagSchoolID},
				Action: withClient(func(cCtx *cli.Context, app *dapp.App) dapp.Result {
					return app.RevokeCredential(cCtx.Context, credentialKey(cCtx))
				}, true),
			},
			{
				Name:  "verify",
				Usage: "verify a document against a stored credential",
				Flags: []cli.Flag{flagStudentID, flagSchoolID, flagFile, flagHash},
				Action: withClient(func(cCtx *cli.Context, app *dapp.App) dapp.Result {
					if path := cCtx.String(flagFile.Name); path != "" {
						if result := app.SelectDocumentFile(cCtx.Context, path); !result.OK() {
							return result
						}
					}
					key := credentialKey(cCtx)
					return app.VerifyCredential(cCtx.Context, dapp.VerifyForm{
						StudentID:    key.StudentID,
						SchoolID:     key.SchoolID,
						DocumentHash: cCtx.String(flagHash.Name),
					})
				}, true),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func credentialKey(cCtx *cli.Context) dapp.CredentialKeyForm {
	return dapp.CredentialKeyForm{
		StudentID: cCtx.String(flagStudentID.Name),
		SchoolID:  cCtx.String(flagSchoolID.Name),
	}
}

// withClient wires the client, optionally connects the wallet first, runs op and prints
// its result.
func withClient(op func(*cli.Context, *dapp.App) dapp.Result, connect bool) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)

		client, err := flags.SetupClient(cCtx, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		if connect {
			if result := client.App.Connect(cCtx.Context); !result.OK() {
				return printResult(result)
			}
		}
		return printResult(op(cCtx, client.App))
	}
}

func printResult(result dapp.Result) error {
	if result.Data != nil {
		encoded, _ := json.MarshalIndent(result.Data, "", "  ")
		fmt.Println(string(encoded))
	}
	if !result.OK() {
		fmt.Fprintln(os.Stderr, result.Error)
		return errOperationFailed
	}
	fmt.Println(result.Message)
	return nil
}

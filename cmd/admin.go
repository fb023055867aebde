package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Kr3yzi/medcertify/internal/models"
)

var (
	patientFullName string
	patientMyKad    string
)

// adminCmd represents the admin command
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Role and patient administration",
}

// grantRoleCmd represents the grant-role command
var grantRoleCmd = &cobra.Command{
	Use:   "grant-role <address> <role>",
	Short: "Grant a role to a wallet address",
	Args:  cobra.ExactArgs(2),
	RunE:  runGrantRole,
}

// registerPatientCmd represents the register-patient command
var registerPatientCmd = &cobra.Command{
	Use:   "register-patient <address>",
	Short: "Register a patient record",
	Long: `Create the patient record for a wallet address. Registration also
grants the patient role; without the record, a patient-role holder cannot
establish a patient session.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegisterPatient,
}

func init() {
	clientCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(grantRoleCmd)
	adminCmd.AddCommand(registerPatientCmd)

	registerPatientCmd.Flags().StringVar(&patientFullName, "name", "", "patient full name")
	registerPatientCmd.Flags().StringVar(&patientMyKad, "mykad", "", "patient MyKad number")
}

func runGrantRole(cmd *cobra.Command, args []string) error {
	address, role := args[0], args[1]
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address: %s", address)
	}

	api, err := newClient()
	if err != nil {
		return err
	}

	if err := api.GrantRole(newContext(), address, models.Role(role)); err != nil {
		return fmt.Errorf("granting role: %w", err)
	}

	cmd.Printf("Granted '%s' to %s\n", role, address)
	return nil
}

func runRegisterPatient(cmd *cobra.Command, args []string) error {
	address := args[0]
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address: %s", address)
	}

	api, err := newClient()
	if err != nil {
		return err
	}

	err = api.RegisterPatient(newContext(), models.PatientRegisterRequest{
		Address:  address,
		FullName: patientFullName,
		MyKadNo:  patientMyKad,
	})
	if err != nil {
		return fmt.Errorf("registering patient: %w", err)
	}

	cmd.Printf("Registered patient %s\n", address)
	return nil
}

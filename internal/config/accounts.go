package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// loadAccounts reads account credentials from ACCOUNTS_FILE when set,
// otherwise from numbered ACCOUNT_<n>_* variables. Accounts without their own
// client credentials inherit CLIENT_ID and CLIENT_SECRET.
func loadAccounts() ([]Account, error) {
	var accounts []Account

	if path := os.Getenv("ACCOUNTS_FILE"); path != "" {
		fromFile, err := loadAccountsFile(path)
		if err != nil {
			return nil, err
		}
		accounts = fromFile
	} else {
		accounts = loadAccountsFromEnv()
	}

	clientID := os.Getenv("CLIENT_ID")
	clientSecret := os.Getenv("CLIENT_SECRET")
	for i := range accounts {
		if accounts[i].ClientID == "" {
			accounts[i].ClientID = clientID
		}
		if accounts[i].ClientSecret == "" {
			accounts[i].ClientSecret = clientSecret
		}
	}
	return accounts, nil
}

func loadAccountsFile(path string) ([]Account, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var accounts []Account
	if err := v.UnmarshalKey("accounts", &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts file: %w", err)
	}
	return accounts, nil
}

func loadAccountsFromEnv() []Account {
	var accounts []Account
	for n := 1; ; n++ {
		prefix := fmt.Sprintf("ACCOUNT_%d_", n)
		a := Account{
			Name:         os.Getenv(prefix + "NAME"),
			Username:     os.Getenv(prefix + "USERNAME"),
			Password:     os.Getenv(prefix + "PASSWORD"),
			ClientID:     os.Getenv(prefix + "CLIENT_ID"),
			ClientSecret: os.Getenv(prefix + "CLIENT_SECRET"),
		}
		if a.Name == "" && a.Username == "" {
			return accounts
		}
		if a.Name == "" {
			a.Name = a.Username
		}
		accounts = append(accounts, a)
	}
}

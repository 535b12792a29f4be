package main

import (
	"os"
	_ "time/tzdata"

	"slaledger/internal/cli"
	"slaledger/internal/platform/logger"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		code := cli.ExitCode(err)
		logger.Get().Error().Err(err).Int("exit_code", code).Msg("slaledger failed")
		os.Exit(code)
	}
}

package cmd

import (
	"grimm.is/portgate/internal/config"
)

// RunConfig prints the effective configuration, defaults included.
func RunConfig(configFile string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return err
	}
	_, err = Stdout.Write(config.Encode(cfg))
	return err
}

package commands

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/SpatiumPortae/stardrop/internal/logger"
	"github.com/SpatiumPortae/stardrop/internal/stardrop"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	relayFlagDesc = `Address of the pairing broker. Accepted formats:
  - 127.0.0.1:8080
  - [::1]:8080
  - somedomain.com
	`
	tuiStyleFlagDesc = "Style of the tui (rich|raw)"
)

var validate = validator.New()
var ErrInvalidAddress = errors.New("invalid address provided")

// validateAddress validates a hostname or IP, optionally with a port.
func validateAddress(addr string) error {

	// IPv4 and IPv6 address validation.
	err := validate.Var(addr, "ip")
	if err == nil {
		return nil
	}

	// IPv4 or IPv6 or domain or localhost.
	err = validate.Var(addr, "hostname")
	if err == nil {
		return nil
	}

	// IPv4 or domain or localhost and a port. Or just a shortand port (:1234).
	err = validate.Var(addr, "hostname_port")
	if err == nil {
		return nil
	}

	// Also validate IPv6 host + port combination. The hostname_port validator does not validate this.
	_, port, hostPortErr := net.SplitHostPort(addr)
	// Additionally, validate the port range.
	if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		return ErrInvalidAddress
	}
	if hostPortErr == nil {
		return nil
	}

	return ErrInvalidAddress
}

// setupLoggingFromViper returns a logger writing to `.stardrop-[cmd].log` when
// verbose output is configured, and a no-op logger otherwise.
func setupLoggingFromViper(cmd string) (*zap.Logger, error) {
	if !viper.GetBool("verbose") {
		return zap.NewNop(), nil
	}
	l, err := logger.ToFile(fmt.Sprintf(".stardrop-%s.log", cmd))
	if err != nil {
		return nil, fmt.Errorf("could not log to the provided file: %w", err)
	}
	return l.Named(cmd), nil
}

// endpointConfigFromViper builds the endpoint config from the viper config.
func endpointConfigFromViper() stardrop.Config {
	return stardrop.Config{
		BrokerAddr:  viper.GetString("relay"),
		STUNServers: viper.GetStringSlice("stun_servers"),
		ChunkSize:   viper.GetInt("chunk_size"),
	}
}

// validateRelayFromViper checks the configured broker address.
func validateRelayFromViper() error {
	relayAddr := viper.GetString("relay")
	if err := validateAddress(relayAddr); err != nil {
		return fmt.Errorf("%w: (%s) is not a valid relay address", err, relayAddr)
	}
	return nil
}

// Package launch models the process-server launch configuration that gets
// baked into an image at build time: one bound socket, a fixed worker and
// thread count, and an application entry point. The tuple is frozen when
// the image is built and read exactly once at container start.
package launch

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
)

const (
	DefaultServer      = "gunicorn"
	DefaultEntrypoint  = "app:app"
	DefaultBindAddress = "0.0.0.0"
	DefaultPort        = 5000
	DefaultWorkers     = 2
	DefaultThreads     = 4
)

type Config struct {
	// Server is the process-server program installed on top of the
	// dependency manifest, e.g. gunicorn.
	Server string `yaml:"server"`
	// Entrypoint in <module>:<attribute> form.
	Entrypoint  string `yaml:"entrypoint"`
	BindAddress string `yaml:"bindAddress"`
	Port        int    `yaml:"port"`
	Workers     int    `yaml:"workers"`
	Threads     int    `yaml:"threads"`
}

func Default() Config {
	return Config{
		Server:      DefaultServer,
		Entrypoint:  DefaultEntrypoint,
		BindAddress: DefaultBindAddress,
		Port:        DefaultPort,
		Workers:     DefaultWorkers,
		Threads:     DefaultThreads,
	}
}

// ApplyDefaults fills zero-valued fields. Decoded manifests only override
// what they set explicitly.
func (c Config) ApplyDefaults() Config {
	def := Default()
	if c.Server == "" {
		c.Server = def.Server
	}
	if c.Entrypoint == "" {
		c.Entrypoint = def.Entrypoint
	}
	if c.BindAddress == "" {
		c.BindAddress = def.BindAddress
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
	if c.Threads == 0 {
		c.Threads = def.Threads
	}
	return c
}

func (c Config) Validate() error {
	if c.Server == "" {
		return errors.New("launch: server program is required")
	}
	if strings.Count(c.Entrypoint, ":") != 1 {
		return fmt.Errorf("launch: entrypoint %q is not in <module>:<attribute> form", c.Entrypoint)
	}
	if net.ParseIP(c.BindAddress) == nil {
		return fmt.Errorf("launch: bind address %q is not a valid IP", c.BindAddress)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("launch: port %d out of range", c.Port)
	}
	if c.Workers < 1 {
		return fmt.Errorf("launch: worker count %d must be at least 1", c.Workers)
	}
	if c.Threads < 1 {
		return fmt.Errorf("launch: thread count %d must be at least 1", c.Threads)
	}
	return nil
}

// Command renders the exact argv registered as the image CMD.
func (c Config) Command() []string {
	return []string{
		c.Server,
		"-w", strconv.Itoa(c.Workers),
		"--threads", strconv.Itoa(c.Threads),
		"-b", net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port)),
		c.Entrypoint,
	}
}

// ParseCommand is the inverse of Command. It exists so the registered
// startup command can be checked for drift against the declared tuple.
func ParseCommand(argv []string) (Config, error) {
	if len(argv) < 2 {
		return Config{}, errors.New("launch: command too short")
	}

	c := Config{
		Server:     argv[0],
		Entrypoint: argv[len(argv)-1],
	}

	i := 1
	for i < len(argv)-1 {
		flagName := argv[i]
		if i+1 >= len(argv)-1 {
			return Config{}, fmt.Errorf("launch: flag %q has no value", flagName)
		}
		value := argv[i+1]
		i += 2

		switch flagName {
		case "-w", "--workers":
			workers, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, fmt.Errorf("launch: invalid worker count %q", value)
			}
			c.Workers = workers
		case "--threads":
			threads, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, fmt.Errorf("launch: invalid thread count %q", value)
			}
			c.Threads = threads
		case "-b", "--bind":
			host, portRaw, err := net.SplitHostPort(value)
			if err != nil {
				return Config{}, fmt.Errorf("launch: invalid bind %q: %w", value, err)
			}
			port, err := strconv.Atoi(portRaw)
			if err != nil {
				return Config{}, fmt.Errorf("launch: invalid port %q", portRaw)
			}
			c.BindAddress = host
			c.Port = port
		default:
			return Config{}, fmt.Errorf("launch: unknown flag %q", flagName)
		}
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ContainerPort is the single exposed port in Docker's <port>/<proto> form.
func (c Config) ContainerPort() nat.Port {
	return nat.Port(strconv.Itoa(c.Port) + "/tcp")
}

// PortBindings maps the container port to the same port on the host. The
// operating system provides mutual exclusion for the host side; a second
// container asking for the same port fails to start.
func (c Config) PortBindings() (nat.PortSet, nat.PortMap) {
	port := c.ContainerPort()
	exposed := nat.PortSet{port: struct{}{}}
	bindings := nat.PortMap{
		port: []nat.PortBinding{
			{HostIP: c.BindAddress, HostPort: strconv.Itoa(c.Port)},
		},
	}
	return exposed, bindings
}

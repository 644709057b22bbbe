package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/muesli/coral"
	"github.com/pkg/errors"
	"github.com/safeshare/safeshare/internal/database"
	"github.com/safeshare/safeshare/internal/server"
	"github.com/safeshare/safeshare/internal/store"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const dbname = "safeshare.db"

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cfg string
)

func main() {
	c := &coral.Command{
		Use:     "safeshare",
		Short:   "Zero-knowledge one-time share server",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    coral.ExactArgs(0),
	}

	serverCmd.Flags().StringVarP(&cfg, "config", "c", "", "Configuration file")
	c.AddCommand(serverCmd)

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

var serverCmd = &coral.Command{
	Use:   "server",
	Short: "Start server",
	Args:  coral.ExactArgs(0),
	RunE: func(_ *coral.Command, _ []string) error {
		konf := koanf.New(".")
		if cfg != "" {
			if err := konf.Load(file.Provider(cfg), yaml.Parser()); err != nil {
				return err
			}
		}

		if logfile := konf.String("log.file"); logfile != "" {
			logrus.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   logfile,
				MaxSize:    20, // megabytes
				MaxBackups: 2,
				MaxAge:     10, // days
			}))
		}

		db, err := openDatabase(konf)
		if err != nil {
			return errors.Wrap(err, "could not open database")
		}
		defer db.Close()

		blobs := store.New(db)
		if err := blobs.Load(); err != nil {
			return errors.Wrap(err, "could not rehydrate store")
		}

		engine := server.EchoEngine(server.Controller{
			Version: version,
			Store:   blobs,
		})
		server.PrintRoutes(engine)

		address := konf.String("address")
		if address == "" {
			address = ":3000"
		}
		message := "could not run server"
		log.Printf("Server listening on %s\n", address)
		parts := strings.Split(address, ":")
		if len(parts) == 2 && parts[0] == "unix" {
			socketFile := parts[1]
			if _, err := os.Stat(socketFile); err == nil {
				log.Printf("Removing existing %s\n", socketFile)
				os.Remove(socketFile)
			}
			defer os.Remove(socketFile)
			listener, err := net.Listen(parts[0], socketFile)
			if err != nil {
				return err
			}
			return errors.Wrap(engine.Server.Serve(listener), message)
		}
		return errors.Wrap(engine.Start(address), message)
	},
}

func openDatabase(konf *koanf.Koanf) (database.Client, error) {
	path := konf.String("data_path")
	if path == "" {
		path = "data"
	}

	switch driver := konf.String("database.driver"); driver {
	case "", "filesystem":
		return database.FSOpen(path)
	case "storm":
		return database.StormOpen(filepath.Join(path, dbname))
	default:
		return nil, errors.Errorf("unknown database driver %q", driver)
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"golang.org/x/term"

	"github.com/tbd54566975/ssi-wallet/config"
	"github.com/tbd54566975/ssi-wallet/pkg/wallet"
)

const usage = `usage: wallet [flags] <command> [args]

commands:
  verify <file>                          verify a credential or presentation
  match <definition> [candidates]        select credentials for a presentation definition
  present <definition> [audience] [nonce] sign a presentation of the matching credentials
  issue <offer> [format] [pin]           run an OpenID4VCI issuance and store the credential
  keys list | create [Ed25519|P-256]
  credentials list | show <id> | add <file> | delete <id> | verify <id>

run with --help for configuration flags`

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Error("main: command failed")
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	if envConfigPath, present := os.LookupEnv(config.ConfigPath.String()); present {
		configPath = envConfigPath
	} else if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		configPath = config.DefaultConfigPath
	}
	cfg, err := config.LoadConfig(configPath, os.Args[1:])
	if err != nil {
		return errors.Wrap(err, "loading config")
	}
	if cfg == nil {
		return nil
	}

	if logFile := configureLogger(cfg.Wallet.LogLevel, cfg.Wallet.LogLocation); logFile != nil {
		defer func(logFile *os.File) {
			if err := logFile.Close(); err != nil {
				logrus.WithError(err).Error("failed to close log file")
			}
		}(logFile)
	}

	if len(cfg.Args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return errors.New("no command given")
	}

	out, err := conf.String(cfg)
	if err != nil {
		return errors.Wrap(err, "serializing config")
	}
	logrus.Debugf("main: Config: \n%v\n", out)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Wallet.JaegerEnabled {
		tp, err := newTracerProvider(cfg)
		if err != nil {
			logrus.WithError(err).Error("could not instantiate tracer provider")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logrus.WithError(err).Error("main: failed to shutdown tracer")
				}
			}()
		}
	}

	if cfg.Storage.EncryptionPassword == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		if cfg.Storage.EncryptionPassword, err = promptPassword(); err != nil {
			return err
		}
	}

	w, err := wallet.New(ctx, *cfg)
	if err != nil {
		return errors.Wrap(err, "opening wallet")
	}
	defer func() {
		if err := w.Close(); err != nil {
			logrus.WithError(err).Error("main: failed to close wallet storage")
		}
	}()

	cli := &commands{wallet: w, cfg: cfg, out: os.Stdout, in: os.Stdin}
	return cli.dispatch(ctx, cfg.Args)
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "storage password (empty for none): ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(password), nil
}

// newTracerProvider returns an OpenTelemetry TracerProvider exporting to the configured Jaeger collector.
func newTracerProvider(cfg *config.WalletConfig) (*sdktrace.TracerProvider, error) {
	jaegerHost := cfg.Wallet.JaegerHost
	if jaegerHost == "" {
		return nil, errors.New("no jaeger host provided")
	}
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerHost)))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version.SVN),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp, nil
}

// configureLogger logs to stderr, and to a file under location when set. Stdout is kept for command output.
// The returned file must be closed on exit.
func configureLogger(level, location string) *os.File {
	if level != "" {
		logLevel, err := logrus.ParseLevel(level)
		if err != nil {
			logrus.WithError(err).Errorf("could not parse log level<%s>, setting to info", level)
			logrus.SetLevel(logrus.InfoLevel)
		} else {
			logrus.SetLevel(logLevel)
		}
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetReportCaller(true)

	now := time.Now()
	logrus.SetOutput(os.Stderr)
	if location != "" {
		logFile := location + "/" + config.ServiceName + "-" + now.Format(time.DateOnly) + "-" + strconv.FormatInt(now.Unix(), 10) + ".log"
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			logrus.WithError(err).Warn("failed to create logs file, using stderr")
			return nil
		}
		logrus.SetOutput(io.MultiWriter(os.Stderr, file))
		return file
	}
	return nil
}

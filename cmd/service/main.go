package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mtadic/portfolio-backend/internal"
	"github.com/mtadic/portfolio-backend/internal/config"
	"github.com/mtadic/portfolio-backend/internal/logging"
	"github.com/mtadic/portfolio-backend/pkg"

	log "github.com/sirupsen/logrus"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        sentryDSN,
		SentryServerName: "portfolio-backend",
	})

	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)

	jwtSecret := os.Getenv("PORTFOLIO_JWT_SECRET")
	if jwtSecret == "" {
		log.Errorf("jwt secret not set, use PORTFOLIO_JWT_SECRET env var to set it")
		// an ephemeral secret keeps development going, but every
		// restart invalidates all outstanding tokens
		jwtSecret, err = pkg.GenerateRandomString(48)
		if err != nil {
			log.Fatalf("generate ephemeral jwt secret: %s", err)
		}
		log.Warnln("using an ephemeral jwt secret, sessions will not survive a restart")
	}

	redisPassword := os.Getenv("PORTFOLIO_REDIS_PASS")
	if redisPassword == "" {
		log.Errorf("redis password not set. use PORTFOLIO_REDIS_PASS")
	}

	versionInfo, err := tryGetLastCommitHash()
	if err != nil {
		log.Tracef("failed to get last commit hash / version info: %s", err)
	} else {
		log.Tracef("running version: %s", versionInfo)
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	server, err := internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:        cfg,
			VersionInfo:   versionInfo,
			RedisPassword: redisPassword,
			JWTSecret:     []byte(jwtSecret),
		},
	)
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	server.Serve(ctx, cfg.Host, cfg.Port)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	server.GracefulShutdown()
}

// tryGetLastCommitHash will try to get the last commit hash
// assumes that the built main executable is in project root
func tryGetLastCommitHash() (string, error) {
	cmd := exec.Command("/usr/bin/git", "rev-parse", "HEAD")
	stdout, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(pkg.BytesToString(stdout)), nil
}

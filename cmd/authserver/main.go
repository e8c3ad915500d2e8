// Command authserver runs a standalone authentication server over a
// file-backed store. It is a reference wiring of the library, configured
// entirely from AUTHCORE_* environment variables.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/norspire/authcore"
	authoauth "github.com/norspire/authcore/oauth2"
	"github.com/norspire/authcore/stores"
)

func main() {
	addr := flag.String("addr", ":8000", "address to listen on")
	dataDir := flag.String("data", "./authdata", "directory for the file-backed store")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := authcore.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := stores.NewFSStore(*dataDir)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	codec := authcore.NewTokenCodec([]byte(cfg.SecretKey), cfg.AppName)
	hasher := &authcore.PasswordHasher{Cost: cfg.BcryptCost, MinLength: cfg.MinPasswordLength}
	issuer := authcore.NewAuthSessionIssuer(codec, store)
	issuer.TTL = cfg.SessionTTL

	server := &authcore.Server{
		Reconciler: authcore.NewIdentityReconciler(store, hasher),
		Issuer:     issuer,
		Workflows: &authcore.WorkflowOrchestrator{
			Store:     store,
			Codec:     codec,
			Hasher:    hasher,
			Mailer:    cfg.NewMailer(),
			Sessions:  store,
			BaseURL:   cfg.BaseURL,
			VerifyTTL: cfg.VerifyTTL,
			ResetTTL:  cfg.ResetTTL,
			Logger:    logger,
		},
		CookieName:    cfg.CookieName,
		CookieDomain:  cfg.CookieDomain,
		SecureCookies: cfg.CookieSecure,
		Logger:        logger,
	}

	if cfg.GoogleClientID != "" {
		google := authoauth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
		server.Mount("/auth/google", (&authoauth.Flow{
			Provider:      google,
			Complete:      server.CompleteOAuth,
			SecureCookies: cfg.CookieSecure,
			Logger:        logger,
		}).Handler())
		logger.Info("google sign-in enabled")
	}

	if cfg.VippsClientID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		vipps, err := authoauth.NewVippsProvider(ctx, cfg.VippsClientID, cfg.VippsClientSecret, cfg.VippsCallbackURL, cfg.VippsIssuerURL)
		cancel()
		if err != nil {
			log.Fatalf("vipps provider: %v", err)
		}
		server.Mount("/auth/vipps", (&authoauth.Flow{
			Provider:      vipps,
			Complete:      server.CompleteOAuth,
			SecureCookies: cfg.CookieSecure,
			Logger:        logger,
		}).Handler())
		logger.Info("vipps sign-in enabled")
	}

	logger.Info("listening", "addr", *addr, "data", *dataDir)
	if err := http.ListenAndServe(*addr, server.Handler()); err != nil {
		log.Fatal(err)
	}
}

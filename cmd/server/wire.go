package main

import (
	"context"
	"fmt"

	"github.com/remindmail/remindmail/internal/config"
	"github.com/remindmail/remindmail/internal/database"
	"github.com/remindmail/remindmail/internal/email"
	"github.com/remindmail/remindmail/internal/handler"
	"github.com/remindmail/remindmail/internal/logger"
	"github.com/remindmail/remindmail/internal/migrations"
	"github.com/remindmail/remindmail/internal/repository"
	"github.com/remindmail/remindmail/internal/service"
)

// storeHandle bundles the selected backend with its health check and cleanup
type storeHandle struct {
	reminders service.ReminderStore
	health    handler.HealthChecker
	close     func() error
}

func (s *storeHandle) Close() {
	if s.close != nil {
		s.close()
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*storeHandle, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		db, err := database.NewMongo(cfg.Mongo)
		if err != nil {
			return nil, err
		}
		repo := repository.NewMongoReminderRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			db.Close()
			return nil, err
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")
		return &storeHandle{reminders: repo, health: db, close: db.Close}, nil

	case config.DriverPostgres:
		db, err := database.NewPostgres(cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("connected to PostgreSQL")

		if cfg.AutoMigrate {
			changed, err := migrations.Up(db.DB)
			if err != nil {
				db.Close()
				return nil, err
			}
			log.Info().Bool("changed", changed).Msg("database schema up to date")
		}
		return &storeHandle{reminders: repository.NewReminderRepository(db), health: db, close: db.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// newSender builds the configured mail transport. Missing or invalid
// credentials do not stop the server; every delivery then fails and the
// reminders stay pending until the configuration is fixed.
func newSender(ctx context.Context, cfg config.EmailConfig, log *logger.Logger) email.Sender {
	log = log.WithComponent("email")

	if !cfg.HasCredentials() {
		log.Warn().Str("provider", cfg.Provider).Msg("email credentials not configured, reminders will not be delivered")
		return email.UnconfiguredSender{Provider: cfg.Provider}
	}

	var (
		sender email.Sender
		err    error
	)
	switch cfg.Provider {
	case config.ProviderGmail:
		if cfg.Gmail.CredentialsJSON != "" {
			sender, err = email.NewGmailSender(ctx, email.GmailConfig{
				CredentialsJSON: cfg.Gmail.CredentialsJSON,
				SenderAddress:   cfg.SenderAddress(),
				SenderName:      cfg.SenderName,
			})
		} else {
			sender, err = email.NewGmailSenderWithToken(ctx,
				cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RefreshToken,
				cfg.SenderAddress(), cfg.SenderName)
		}
	default:
		sender, err = email.NewSMTPSender(email.SMTPConfig{
			Host:          cfg.SMTP.Host,
			Port:          cfg.SMTP.Port,
			Username:      cfg.SMTP.Username,
			Password:      cfg.SMTP.Password,
			SenderAddress: cfg.SenderAddress(),
			SenderName:    cfg.SenderName,
		})
	}
	if err != nil {
		log.Error().Err(err).Str("provider", cfg.Provider).Msg("failed to initialize email sender, reminders will not be delivered")
		return email.UnconfiguredSender{Provider: cfg.Provider}
	}

	log.Info().Str("provider", cfg.Provider).Str("from", cfg.SenderAddress()).Msg("email sender initialized")
	return sender
}

package buildCFG

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/mailer"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/notify"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo/memrepo"
)

// OpenRepository connects the configured store and applies migrations.
// The close func is non-nil whenever err is nil.
func OpenRepository(ctx context.Context, cfg Getter, log *zerolog.Logger) (repo.Repository, func(), error) {
	sc := BuildStorageConfig(cfg)
	switch sc.Driver {
	case "memory":
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		return memrepo.New(), func() {}, nil
	case "postgres":
	default:
		return nil, nil, fmt.Errorf("unknown storage.driver %q", sc.Driver)
	}

	master, slaves, poolOptions, err := BuildDBConfig(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	db, err := dbpg.New(master, slaves, poolOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to DB: %w", err)
	}
	closeDB := func() {
		if err := db.Master.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close DB")
		}
	}
	if err := db.Master.PingContext(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("DB ping: %w", err)
	}
	log.Info().Msg("database connected successfully")

	if err := repo.MigrateUp(ctx, db, log, sc.Migrations); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	r, err := repo.NewRepository(db, log)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return r, closeDB, nil
}

// DirectDispatcher renders emails in the configured timezone and sends them
// over SMTP, or logs them when no SMTP host is set.
func DirectDispatcher(cfg Getter, server ServerConfig, log *zerolog.Logger) *notify.Direct {
	mc := BuildMailConfig(cfg)
	var sink mailer.Sink
	if mc.SMTP.Host == "" {
		log.Warn().Msg("mail.smtp_host is empty, emails will be logged instead of sent")
		sink = mailer.NewLogSink(log)
	} else {
		sink = mailer.NewSMTPSink(mc.SMTP, log)
	}
	renderer := mailer.NewRenderer(server.BaseURL, mc.SchoolName, server.Location)
	return notify.NewDirect(renderer, sink, log)
}

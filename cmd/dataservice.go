package cmd

import (
	"context"
	"database/sql"
	"flag"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"finedu/content"
	"finedu/db"
	qhttp "finedu/http"
)

type dataServiceCmd struct {
	configFlags
	port int
	seed bool
}

func (*dataServiceCmd) Name() string     { return "dataservice" }
func (*dataServiceCmd) Synopsis() string { return "serve the SQLite-backed /rest content API" }
func (*dataServiceCmd) Usage() string {
	return `finedu dataservice [-config <path>] [-port n] [-seed]

  Serves /rest/{articles,news,users,updates} from the configured database.
  With -seed, empty collections are filled with the sample content first.
`
}

func (c *dataServiceCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.IntVar(&c.port, "port", 8081, "listen port")
	f.BoolVar(&c.seed, "seed", false, "load sample content into empty collections")
}

func (c *dataServiceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := c.load()
	if err != nil {
		return fail("%v", err)
	}
	defer log.Sync()

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return fail("%v", err)
	}
	defer database.Close()
	log.Info("database ready", zap.String("path", cfg.Database.Path))

	if c.seed {
		if err := seedAll(ctx, database, log); err != nil {
			return fail("seed: %v", err)
		}
	}

	httpCfg := cfg.HTTP
	httpCfg.Port = c.port
	server := qhttp.NewServer(httpCfg, log, nil, &qhttp.DataService{DB: database, APIKey: cfg.Backend.APIKey})
	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	select {
	case err := <-errc:
		if err != nil {
			return fail("%v", err)
		}
		return subcommands.ExitSuccess
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	return subcommands.ExitSuccess
}

func seedAll(ctx context.Context, database *sql.DB, log *zap.Logger) error {
	if err := seed(ctx, content.KindArticles, db.NewDocuments[content.Article, content.ArticleInput](database, content.KindArticles), content.FallbackArticles(), log); err != nil {
		return err
	}
	if err := seed(ctx, content.KindNews, db.NewDocuments[content.News, content.NewsInput](database, content.KindNews), content.FallbackNews(), log); err != nil {
		return err
	}
	if err := seed(ctx, content.KindUsers, db.NewDocuments[content.User, content.UserInput](database, content.KindUsers), content.FallbackUsers(), log); err != nil {
		return err
	}
	return seed(ctx, content.KindUpdates, db.NewDocuments[content.Update, content.UpdateInput](database, content.KindUpdates), content.FallbackUpdates(), log)
}

// seed writes items only when the collection is empty.
func seed[T content.Resource, I any](ctx context.Context, kind content.Kind, docs *db.Documents[T, I], items []T, log *zap.Logger) error {
	n, err := docs.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, it := range items {
		if err := docs.Put(ctx, it); err != nil {
			return err
		}
	}
	log.Info("seeded collection", zap.String("kind", string(kind)), zap.Int("items", len(items)))
	return nil
}

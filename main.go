package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/feedcal/feedcal/config"
	"github.com/feedcal/feedcal/controllers"
	"github.com/feedcal/feedcal/feed"
	"github.com/feedcal/feedcal/global"
	"github.com/feedcal/feedcal/router"
	"github.com/feedcal/feedcal/store"
	"github.com/feedcal/feedcal/syncer"
	"github.com/feedcal/feedcal/utils"
)

func main() {
	config.InitConfig()

	// Run database migrations
	config.MigrateDB()

	utils.SetEncryptionKey(config.AppConfig.Encryption.Key)

	syncConf := config.AppConfig.Sync
	fetcher := feed.NewFetcher(
		int64(syncConf.MaxFeedSizeMiB)<<20,
		time.Duration(syncConf.FetchTimeoutMs)*time.Millisecond,
		config.AppConfig.App.Mode,
	)

	gormStore := store.NewGormStore(global.DB)
	service := syncer.NewService(gormStore, fetcher)
	scheduler := syncer.NewScheduler(service, gormStore,
		time.Duration(syncConf.PollIntervalMinutes)*time.Minute)

	controllers.InitCalendar(service, scheduler)

	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start sync scheduler: %v", err)
	}

	r := router.InitRouter()
	port := config.AppConfig.App.Port
	if port == "" {
		port = ":8080"
	}
	srv := &http.Server{
		Addr:    port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("Shutdown Server ...")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	log.Println("Server exiting")
}

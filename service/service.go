package service

import (
	"time"

	"github.com/zlnvch/easel/blob"
	"github.com/zlnvch/easel/cache"
	"github.com/zlnvch/easel/metrics"
	"github.com/zlnvch/easel/mq"
	"github.com/zlnvch/easel/store"
	"github.com/zlnvch/easel/worker"
	"golang.org/x/oauth2"
)

type Options struct {
	MaxAssetBytes      int64
	UploadURLTTL       time.Duration
	DownloadURLTTL     time.Duration
	CleanupGracePeriod time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxAssetBytes:      50 * 1024 * 1024,
		UploadURLTTL:       15 * time.Minute,
		DownloadURLTTL:     time.Hour,
		CleanupGracePeriod: 10 * time.Minute,
	}
}

type Service struct {
	Store        store.EaselStore
	Blobs        blob.BlobStore
	Cache        cache.EaselCache
	MQ           mq.MessageQueue
	SessionSaver *worker.SessionSaver
	Metrics      metrics.Recorder
	OAuthConfigs map[string]*oauth2.Config

	// OAuthAPIs overrides DefaultOAuthAPIs per provider.
	OAuthAPIs map[string]OAuthAPI
	JWTSecret []byte
	Options   Options
}

func NewService(
	store store.EaselStore,
	blobs blob.BlobStore,
	cache cache.EaselCache,
	mq mq.MessageQueue,
	sessionSaver *worker.SessionSaver,
	recorder metrics.Recorder,
	oauthConfigs map[string]*oauth2.Config,
	jwtSecret []byte,
	options Options,
) (*Service, error) {
	oauthConfigs, err := addOauthEndpointsAndScopes(oauthConfigs)
	if err != nil {
		return nil, err
	}

	if recorder == nil {
		recorder = metrics.Nop{}
	}

	return &Service{
		Store:        store,
		Blobs:        blobs,
		Cache:        cache,
		MQ:           mq,
		SessionSaver: sessionSaver,
		Metrics:      recorder,
		OAuthConfigs: oauthConfigs,
		JWTSecret:    jwtSecret,
		Options:      options,
	}, nil
}

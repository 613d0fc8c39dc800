/* Copyright 2025 Jotline Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package infra provides operations and definitions for the
// local infrastructure for Jotline
package infra

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/jotline/jotline/pkg/cli/client"
	"github.com/jotline/jotline/pkg/cli/config"
	"github.com/jotline/jotline/pkg/cli/consts"
	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/jotline/jotline/pkg/cli/ui"
	"github.com/jotline/jotline/pkg/cli/utils"
	"github.com/jotline/jotline/pkg/clock"
	"github.com/jotline/jotline/pkg/dirs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	// DefaultAPIEndpoint is the default API endpoint used when none is configured
	DefaultAPIEndpoint = "http://localhost:3001/api"

	// schemaVersion is the current local database schema version
	schemaVersion = 1
)

// RunEFunc is a function type of jotline commands
type RunEFunc func(*cobra.Command, []string) error

func getDBPath(paths context.Paths, customPath string) string {
	if customPath != "" {
		return customPath
	}

	return fmt.Sprintf("%s/%s/%s", paths.Data, consts.JotlineDirName, consts.JotlineDBFileName)
}

// newBaseCtx creates a minimal context with paths and database connection.
// This base context is used for file and database initialization before
// being enriched with config values by setupCtx.
func newBaseCtx(versionTag, customDBPath string) (context.JotCtx, error) {
	paths := context.Paths{
		Home:   dirs.Home,
		Config: dirs.ConfigHome,
		Data:   dirs.DataHome,
		Cache:  dirs.CacheHome,
	}

	for _, dir := range []string{
		fmt.Sprintf("%s/%s", paths.Config, consts.JotlineDirName),
		fmt.Sprintf("%s/%s", paths.Data, consts.JotlineDirName),
		fmt.Sprintf("%s/%s", paths.Cache, consts.JotlineDirName),
	} {
		if err := utils.EnsureDir(dir); err != nil {
			return context.JotCtx{}, errors.Wrapf(err, "preparing directory %s", dir)
		}
	}

	dbPath := getDBPath(paths, customDBPath)

	db, err := database.Open(dbPath)
	if err != nil {
		return context.JotCtx{}, errors.Wrap(err, "connecting to db")
	}

	ctx := context.JotCtx{
		Paths:   paths,
		Version: versionTag,
		DB:      db,
	}

	return ctx, nil
}

// Init initializes the Jotline environment and returns a new jotline context.
// apiEndpoint is used when creating a new config file.
func Init(versionTag, apiEndpoint, dbPath string) (*context.JotCtx, error) {
	ctx, err := newBaseCtx(versionTag, dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "initializing a context")
	}

	if err := initFiles(ctx, apiEndpoint); err != nil {
		return nil, errors.Wrap(err, "initializing files")
	}

	if err := InitDB(ctx); err != nil {
		return nil, errors.Wrap(err, "initializing database")
	}
	if err := InitSystem(ctx); err != nil {
		return nil, errors.Wrap(err, "initializing system data")
	}

	ctx, err = setupCtx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "setting up the context")
	}

	// a caller-provided endpoint overrides the configured one for this run
	// without modifying the config file
	if apiEndpoint != "" {
		ctx.APIEndpoint = apiEndpoint
	}

	log.Debug("context: %+v\n", context.Redact(ctx))

	return &ctx, nil
}

// setupCtx enriches the base context with values from config file and database.
// This is called after files and database have been initialized.
func setupCtx(ctx context.JotCtx) (context.JotCtx, error) {
	db := ctx.DB

	var sessionKey string
	var sessionKeyExpiry int64

	err := db.QueryRow("SELECT value FROM system WHERE key = ?", consts.SystemSessionKey).Scan(&sessionKey)
	if err != nil && err != sql.ErrNoRows {
		return ctx, errors.Wrap(err, "finding session key")
	}
	err = db.QueryRow("SELECT value FROM system WHERE key = ?", consts.SystemSessionKeyExpiry).Scan(&sessionKeyExpiry)
	if err != nil && err != sql.ErrNoRows {
		return ctx, errors.Wrap(err, "finding session key expiry")
	}

	cf, err := config.Read(ctx)
	if err != nil {
		return ctx, errors.Wrap(err, "reading config")
	}

	ret := context.JotCtx{
		Paths:              ctx.Paths,
		Version:            ctx.Version,
		DB:                 ctx.DB,
		SessionKey:         sessionKey,
		SessionKeyExpiry:   sessionKeyExpiry,
		APIEndpoint:        cf.APIEndpoint,
		Editor:             cf.Editor,
		Clock:              clock.New(),
		EnableUpgradeCheck: cf.EnableUpgradeCheck,
		HTTPClient:         client.NewRateLimitedHTTPClient(),
		MaxRetries:         cf.MaxRetries,
		BackoffBase:        time.Duration(cf.BackoffBaseSeconds) * time.Second,
		BackoffMax:         time.Duration(cf.BackoffMaxSeconds) * time.Second,
		HistoryLimit:       cf.HistoryLimit,
		AttemptTimeout:     time.Duration(cf.AttemptTimeoutSeconds) * time.Second,
	}

	return ret, nil
}

// InitDB initializes the database schema
func InitDB(ctx context.JotCtx) error {
	log.Debug("initializing the database\n")

	return ctx.DB.InitSchema()
}

func initSystemKV(db *database.DB, key string, val string) error {
	var count int
	if err := db.QueryRow("SELECT count(*) FROM system WHERE key = ?", key).Scan(&count); err != nil {
		return errors.Wrapf(err, "counting %s", key)
	}

	if count > 0 {
		return nil
	}

	if _, err := db.Exec("INSERT INTO system (key, value) VALUES (?, ?)", key, val); err != nil {
		return errors.Wrapf(err, "inserting %s %s", key, val)
	}

	return nil
}

// InitSystem inserts system data if missing
func InitSystem(ctx context.JotCtx) error {
	log.Debug("initializing the system\n")

	db := ctx.DB

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	nowStr := strconv.FormatInt(time.Now().Unix(), 10)
	if err := initSystemKV(tx, consts.SystemSchema, strconv.Itoa(schemaVersion)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "initializing system config for %s", consts.SystemSchema)
	}
	if err := initSystemKV(tx, consts.SystemLastUpgrade, nowStr); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "initializing system config for %s", consts.SystemLastUpgrade)
	}
	if err := initSystemKV(tx, consts.SystemLastSyncAt, "0"); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "initializing system config for %s", consts.SystemLastSyncAt)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	return nil
}

// initConfigFile populates a new config file if it does not exist yet
func initConfigFile(ctx context.JotCtx, apiEndpoint string) error {
	path := config.GetPath(ctx)
	ok, err := utils.FileExists(path)
	if err != nil {
		return errors.Wrap(err, "checking if config exists")
	}
	if ok {
		return nil
	}

	endpoint := apiEndpoint
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}

	cf := config.Config{
		Editor:             ui.GetEditorCommand(),
		APIEndpoint:        endpoint,
		EnableUpgradeCheck: true,
	}
	cf.ApplyDefaults()

	if err := config.Write(ctx, cf); err != nil {
		return errors.Wrap(err, "writing the config file")
	}

	return nil
}

// loadEnvFile loads optional environment overrides from the env file in the
// config directory. A missing file is not an error.
func loadEnvFile(ctx context.JotCtx) error {
	path := fmt.Sprintf("%s/%s/%s", ctx.Paths.Config, consts.JotlineDirName, consts.EnvFilename)

	ok, err := utils.FileExists(path)
	if err != nil {
		return errors.Wrapf(err, "checking the env file at %s", path)
	}
	if !ok {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "loading the env file at %s", path)
	}

	return nil
}

func initFiles(ctx context.JotCtx, apiEndpoint string) error {
	if err := loadEnvFile(ctx); err != nil {
		return errors.Wrap(err, "loading env overrides")
	}

	if err := utils.EnsureDir(ctx.AttachmentsDir()); err != nil {
		return errors.Wrap(err, "preparing the attachments directory")
	}
	if err := utils.EnsureDir(ctx.EditLockDir()); err != nil {
		return errors.Wrap(err, "preparing the edit lock directory")
	}

	if err := initConfigFile(ctx, apiEndpoint); err != nil {
		return errors.Wrap(err, "initializing config file")
	}

	return nil
}

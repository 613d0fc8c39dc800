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

// Package upgrade provides automated version check against the releases
package upgrade

import (
	stdctx "context"
	"strconv"
	"strings"

	"github.com/google/go-github/github"
	"github.com/jotline/jotline/pkg/cli/consts"
	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/jotline/jotline/pkg/cli/database"
	"github.com/jotline/jotline/pkg/cli/log"
	"github.com/pkg/errors"
)

const (
	repoOwner = "jotline"
	repoName  = "jotline"

	// checkInterval is the minimum number of seconds between two upgrade checks
	checkInterval = 86400 * 7
)

func getLastUpgradeCheck(db *database.DB) (int64, error) {
	var ret int64
	if err := database.GetSystem(db, consts.SystemLastUpgrade, &ret); err != nil {
		return 0, errors.Wrap(err, "getting the last upgrade timestamp")
	}

	return ret, nil
}

func touchLastUpgradeCheck(ctx context.JotCtx) error {
	now := ctx.Clock.Now().Unix()
	if err := database.UpsertSystem(ctx.DB, consts.SystemLastUpgrade, strconv.FormatInt(now, 10)); err != nil {
		return errors.Wrap(err, "updating the last upgrade timestamp")
	}

	return nil
}

func fetchLatestVersion(ctx context.JotCtx) (string, error) {
	gh := github.NewClient(ctx.HTTPClient)

	release, _, err := gh.Repositories.GetLatestRelease(stdctx.Background(), repoOwner, repoName)
	if err != nil {
		return "", errors.Wrap(err, "fetching the latest release")
	}

	tag := release.GetTagName()

	return strings.TrimPrefix(tag, "v"), nil
}

func shouldCheck(ctx context.JotCtx) (bool, error) {
	if !ctx.EnableUpgradeCheck {
		return false, nil
	}

	lastCheck, err := getLastUpgradeCheck(ctx.DB)
	if err != nil {
		return false, err
	}

	now := ctx.Clock.Now().Unix()

	return now-lastCheck > checkInterval, nil
}

// Check checks if a new release is available and prints a message if so.
// The check runs at most once per interval.
func Check(ctx context.JotCtx) error {
	ok, err := shouldCheck(ctx)
	if err != nil {
		return errors.Wrap(err, "checking eligibility")
	}
	if !ok {
		return nil
	}

	latest, err := fetchLatestVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "getting the latest version")
	}

	if err := touchLastUpgradeCheck(ctx); err != nil {
		return errors.Wrap(err, "recording the check")
	}

	if latest == "" || latest == ctx.Version {
		log.Debug("already on the latest version %s\n", ctx.Version)
		return nil
	}

	log.Infof("a newer version %s is available. Visit https://github.com/%s/%s/releases to upgrade.\n", latest, repoOwner, repoName)

	return nil
}

// internal/report/vcs.go
package report

import (
	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/trolleyhq/trolley/api/schemas"
)

// ResolveVCS reads the git revision and branch of the checkout containing
// dir, so reports can tie a run back to the suite code that produced it.
// Runs outside a repository are normal (installed binary, CI tarball), so
// every failure degrades to empty info instead of erroring.
func ResolveVCS(dir string, logger *zap.Logger) schemas.VCSInfo {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		logger.Debug("No git repository detected", zap.String("dir", dir), zap.Error(err))
		return schemas.VCSInfo{}
	}

	head, err := repo.Head()
	if err != nil {
		logger.Debug("Failed to resolve git HEAD", zap.Error(err))
		return schemas.VCSInfo{}
	}

	info := schemas.VCSInfo{Revision: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}
	return info
}

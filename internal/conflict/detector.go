package conflict

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"modsync/internal/model"
)

// Detect diffs two replicas of the same project. It has no side effects and
// returns conflicts in a stable order: modifications then deletions, each
// sorted by path.
//
// Modifications suggest keep_local, favouring the replica that initiated the
// sync. Deletions (present remotely, absent locally) suggest keep_remote so a
// local delete never silently removes a collaborator's file.
func Detect(local, remote *model.ProjectState) []model.Conflict {
	projectID := local.ProjectID
	if projectID == "" {
		projectID = remote.ProjectID
	}

	var modifications, deletions []model.Conflict

	for _, path := range local.Paths() {
		l := local.Files[path]
		r, ok := remote.Files[path]
		if !ok {
			continue
		}

		// equal content wins over differing metadata
		if l.Checksum == r.Checksum || l.Timestamp.Equal(r.Timestamp) {
			continue
		}

		modifications = append(modifications, model.Conflict{
			ID:                conflictID(projectID, path, l, r),
			ProjectID:         projectID,
			FilePath:          path,
			ConflictType:      model.ConflictModification,
			LocalVersion:      l,
			RemoteVersion:     r,
			SuggestedStrategy: model.StrategyKeepLocal,
		})
	}

	for _, path := range remote.Paths() {
		if _, ok := local.Files[path]; ok {
			continue
		}

		r := remote.Files[path]
		l := model.FileRecord{
			Checksum: model.DeletedChecksum,
			Author:   "local",
		}
		deletions = append(deletions, model.Conflict{
			ID:                conflictID(projectID, path, l, r),
			ProjectID:         projectID,
			FilePath:          path,
			ConflictType:      model.ConflictDeletion,
			LocalVersion:      l,
			RemoteVersion:     r,
			SuggestedStrategy: model.StrategyKeepRemote,
		})
	}

	return append(modifications, deletions...)
}

// conflictID identifies one exact pair of versions. A file that diverges
// again later, even to the same contents, gets a new ID.
func conflictID(projectID, path string, local, remote model.FileRecord) string {
	h := sha256.New()
	for _, part := range []string{
		projectID, path,
		local.Checksum, strconv.FormatInt(local.Timestamp.UnixNano(), 10),
		remote.Checksum, strconv.FormatInt(remote.Timestamp.UnixNano(), 10),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))[:24]
}

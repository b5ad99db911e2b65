package dropbox

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
)

func ensureFolder(client files.Client, path string) error {
	arg := files.NewCreateFolderArg(path)
	arg.Autorename = false

	if _, err := client.CreateFolderV2(arg); err != nil {
		if isConflict(err) {
			return nil
		}

		return err
	}

	return nil
}

func normalizePath(p string) string {
	return "/" + strings.Trim(filepath.ToSlash(p), "/")
}

func isDownloadNotFound(err error) bool {
	if apiErr, ok := errors.AsType[files.DownloadAPIError](err); ok {
		return apiErr.EndpointError != nil &&
			apiErr.EndpointError.Path != nil &&
			apiErr.EndpointError.Path.Tag == files.LookupErrorNotFound
	}

	return false
}

func isListNotFound(err error) bool {
	if apiErr, ok := errors.AsType[files.ListFolderAPIError](err); ok {
		return apiErr.EndpointError != nil &&
			apiErr.EndpointError.Path != nil &&
			apiErr.EndpointError.Path.Tag == files.LookupErrorNotFound
	}

	return false
}

func isConflict(err error) bool {
	if apiErr, ok := errors.AsType[files.CreateFolderV2APIError](err); ok {
		return apiErr.EndpointError != nil &&
			apiErr.EndpointError.Path != nil &&
			apiErr.EndpointError.Path.Tag == files.WriteErrorConflict
	}

	return false
}

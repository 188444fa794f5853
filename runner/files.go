package runner

import (
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/ridoystarlord/archiveprune/sandbox"
)

// defaultFilesystem removes record files from the host filesystem. Record
// paths are absolute, so it is rooted at "/".
func defaultFilesystem() billy.Basic {
	return osfs.New("/")
}

// removeRecordFile deletes the file named id below dir. Failures are
// reported to the caller but never stop the cascade.
func (e *Executor) removeRecordFile(table, dir, id string, report *Report) {
	path, err := sandbox.Resolve(dir, id, e.policy)
	if err != nil {
		e.logger.Errorf("Failed to delete file for %s id %s: %v", table, id, err)
		report.FileFailures++
		return
	}
	if path == dir {
		// Only files are removed, never the record directory.
		e.logger.Errorf("Failed to delete file for %s id %s: resolves to the directory %s", table, id, dir)
		report.FileFailures++
		return
	}
	if e.dryRun {
		e.logger.Infof("Would delete file: %s", path)
		return
	}
	e.logger.Debugf("Attempting to delete file: %s", path)
	if err := e.fs.Remove(path); err != nil {
		e.logger.Errorf("Failed to delete file %s: %v", path, err)
		report.FileFailures++
		return
	}
	e.logger.Infof("File deleted: %s", path)
	report.FilesDeleted++
}

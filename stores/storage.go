package stores

import (
	"os"

	"github.com/sirupsen/logrus"

	"retouch-server/core"
	"retouch-server/stores/aws"
	"retouch-server/stores/filesystem"
	"retouch-server/stores/memory"
	"retouch-server/stores/sqlite"
)

// GetStore selects the export store backend from STORAGE_TYPE. Session and
// history state always stays in memory; only user-requested exports are
// handed to a store.
func GetStore() core.ExportStore {
	storageType := os.Getenv("STORAGE_TYPE")
	var store core.ExportStore

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data"
		}
		storageField["basePath"] = basePath
		store = filesystem.NewStore(basePath)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "retouch.db"
		}
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewStore(dataSourceName)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = bucketName
		store = aws.NewStore(bucketName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use export storage")
	return store
}

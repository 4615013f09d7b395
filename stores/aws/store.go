package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"

	"retouch-server/core"
)

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based export store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

// validComponent reports whether a session or export ID is safe to use as a
// single key element. Session IDs come from a client cookie, so they get the
// same treatment as export IDs.
func validComponent(s string) bool {
	return s != "" && s != "." && s != ".." && path.Base(s) == s
}

// exportKey builds the object key for a session-scoped export, refusing
// components that look like paths.
func exportKey(sessionID, id string) (string, error) {
	if !validComponent(sessionID) {
		return "", fmt.Errorf("invalid session id: must be a single key element")
	}
	if !validComponent(id) {
		return "", fmt.Errorf("invalid export id: must be a single key element")
	}
	return path.Join(sessionID, id), nil
}

func (s *s3Store) Create(ctx context.Context, export *core.Export) (string, error) {
	if export.SessionID == "" {
		return "", fmt.Errorf("session id is required")
	}

	id := ulid.Make().String()
	export.ID = id

	key, err := exportKey(export.SessionID, id)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(export)
	if err != nil {
		return "", fmt.Errorf("failed to marshal export: %v", err)
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %v", err)
	}

	return id, nil
}

func (s *s3Store) Get(ctx context.Context, sessionID, id string) (*core.Export, error) {
	key, err := exportKey(sessionID, id)
	if err != nil {
		return nil, err
	}

	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("export with id %s not found for session %s", id, sessionID)
		}
		return nil, fmt.Errorf("failed to get export %s: %v", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read export data: %v", err)
	}

	var export core.Export
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to unmarshal export data: %v", err)
	}
	export.SessionID = sessionID

	return &export, nil
}

func (s *s3Store) List(ctx context.Context, sessionID string) ([]*core.Export, error) {
	if !validComponent(sessionID) {
		return nil, fmt.Errorf("invalid session id: must be a single key element")
	}
	prefix := sessionID + "/"
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list exports for session %s: %v", sessionID, err)
	}

	exports := make([]*core.Export, 0, len(output.Contents))
	for _, object := range output.Contents {
		resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    object.Key,
		})
		if err != nil {
			log.Printf("warn: failed to get object %s: %v", *object.Key, err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			log.Printf("warn: failed to read object body %s: %v", *object.Key, err)
			continue
		}

		var export core.Export
		if err := json.Unmarshal(data, &export); err != nil {
			log.Printf("warn: failed to unmarshal export %s: %v", *object.Key, err)
			continue
		}

		// List views omit the payload.
		export.Data = nil
		export.SessionID = sessionID
		exports = append(exports, &export)
	}

	return exports, nil
}

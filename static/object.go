package static

import (
	"context"
	"fmt"
	"io/ioutil"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectSource loads a bootstrap file from an S3-compatible object store.
type ObjectSource struct {
	Client *minio.Client
	Bucket string
	Object string
}

// NewObjectSource returns an ObjectSource that reads bucket/object from the
// store at endpoint.
func NewObjectSource(
	endpoint, region, bucket, object, accessKeyID, secretAccessKey string,
	useSSL bool,
) (*ObjectSource, error) {
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	return &ObjectSource{
		Client: c,
		Bucket: bucket,
		Object: object,
	}, nil
}

// Load fetches and parses the bootstrap file.
func (s *ObjectSource) Load(ctx context.Context) (Routes, error) {
	obj, err := s.Client.GetObject(ctx, s.Bucket, s.Object, minio.GetObjectOptions{})
	if err != nil {
		return Routes{}, err
	}
	defer obj.Close()

	data, err := ioutil.ReadAll(obj)
	if err != nil {
		return Routes{}, fmt.Errorf("could not read %s/%s: %w", s.Bucket, s.Object, err)
	}

	return parseFile(data)
}

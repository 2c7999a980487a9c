package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// File names inside the data and model directories.
const (
	VectorizerFile      = "tfidf_vectorizer.msgpack"
	CategoryEncoderFile = "category_encoder.msgpack"
	PriorityEncoderFile = "priority_encoder.msgpack"
	FeaturesFile        = "features.msgpack"
	CategoryModelFile   = "category_model.msgpack"
	PriorityModelFile   = "priority_model.msgpack"
	MetadataFile        = "metadata.json"
)

// Envelope kinds.
const (
	kindVectorizer      = "vectorizer"
	kindCategoryEncoder = "category_encoder"
	kindPriorityEncoder = "priority_encoder"
	kindFeatures        = "features"
	kindCategoryModel   = "category_model"
	kindPriorityModel   = "priority_model"
)

const formatVersion = 1

// envelope wraps every msgpack artifact with the run that produced it and the
// fingerprint of the preprocessing it belongs to.
type envelope struct {
	Kind        string             `msgpack:"kind"`
	Format      int                `msgpack:"format"`
	RunID       string             `msgpack:"run_id"`
	Fingerprint string             `msgpack:"fingerprint"`
	Payload     msgpack.RawMessage `msgpack:"payload"`
}

type encoderPayload struct {
	Classes []string `msgpack:"classes"`
}

func encode(kind, runID, fingerprint string, payload any) ([]byte, error) {
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return msgpack.Marshal(envelope{
		Kind:        kind,
		Format:      formatVersion,
		RunID:       runID,
		Fingerprint: fingerprint,
		Payload:     raw,
	})
}

// readEnvelope reads path and decodes its envelope, checking the kind. The
// payload is decoded into out.
func readEnvelope(path, kind string, out any) (envelope, error) {
	data, err := readFile(path)
	if err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %s: %w", ErrCorruptArtifact, path, err)
	}
	if env.Kind != kind {
		return envelope{}, fmt.Errorf("%w: %s: kind %q, want %q", ErrCorruptArtifact, path, env.Kind, kind)
	}
	if env.Format != formatVersion {
		return envelope{}, fmt.Errorf("%w: %s: format %d, want %d", ErrCorruptArtifact, path, env.Format, formatVersion)
	}
	if err := msgpack.Unmarshal(env.Payload, out); err != nil {
		return envelope{}, fmt.Errorf("%w: %s: payload: %w", ErrCorruptArtifact, path, err)
	}
	return env, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %w", ErrMissingArtifact, err)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// writeFile replaces path atomically: the data goes to a temp file in the
// same directory, is synced, then renamed over the target.
func writeFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

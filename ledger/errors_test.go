package ledger

import (
	"errors"
	"testing"
)

func TestWrapWriteError_Nil(t *testing.T) {
	if err := WrapWriteError(nil, "path"); err != nil {
		t.Errorf("WrapWriteError(nil) = %v, want nil", err)
	}
	if err := WrapReadError(nil, "path"); err != nil {
		t.Errorf("WrapReadError(nil) = %v, want nil", err)
	}
	if err := WrapInitError(nil, "ds"); err != nil {
		t.Errorf("WrapInitError(nil) = %v, want nil", err)
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"enoent", errors.New("open /data/x: no such file or directory"), ErrNotFound},
		{"s3 no key", errors.New("NoSuchKey: The specified key does not exist"), ErrNotFound},
		{"enospc", errors.New("write /data/x: no space left on device"), ErrDiskFull},
		{"deadline", errors.New("context deadline exceeded"), ErrTimeout},
		{"slowdown", errors.New("SlowDown: Please reduce your request rate"), ErrThrottled},
		{"no creds", errors.New("NoCredentialProviders: no valid providers in chain"), ErrAuth},
		{"eacces", errors.New("open /data/x: permission denied"), ErrPermissionDenied},
		{"s3 denied", errors.New("AccessDenied: Access Denied, status code: 403"), ErrPermissionDenied},
		{"refused", errors.New("dial tcp 127.0.0.1:9000: connection refused"), ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := WrapWriteError(tt.err, "adit/activity")
			if !errors.Is(wrapped, tt.want) {
				t.Errorf("classification = %v, want %v", wrapped, tt.want)
			}
		})
	}
}

func TestStorageError_Format(t *testing.T) {
	inner := errors.New("boom")

	withPath := WrapWriteError(inner, "adit/activity")
	want := "write adit/activity: storage error: boom"
	if withPath.Error() != want {
		t.Errorf("Error() = %q, want %q", withPath.Error(), want)
	}

	noPath := &StorageError{Kind: ErrTimeout, Op: "read", Err: inner}
	want = "read: operation timed out: boom"
	if noPath.Error() != want {
		t.Errorf("Error() = %q, want %q", noPath.Error(), want)
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	inner := errors.New("underlying")
	wrapped := WrapReadError(inner, "adit/metrics")

	if !errors.Is(wrapped, inner) {
		t.Error("wrapped error should match the underlying error")
	}

	var se *StorageError
	if !errors.As(wrapped, &se) {
		t.Fatal("errors.As should find StorageError")
	}
	if se.Op != "read" {
		t.Errorf("Op = %q, want read", se.Op)
	}
}

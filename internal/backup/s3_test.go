package backup

import (
	"strings"
	"testing"
)

func TestParseS3BucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{
			name:    "bucket only",
			raw:     "s3://my-bucket",
			wantBkt: "my-bucket",
		},
		{
			name:    "bucket with prefix",
			raw:     "s3://my-bucket/gitgrid/backups/",
			wantBkt: "my-bucket",
			wantPre: "gitgrid/backups",
		},
		{
			name:      "invalid scheme",
			raw:       "https://my-bucket/gitgrid",
			wantErr:   true,
			errSubstr: "s3:// scheme",
		},
		{
			name:      "missing bucket",
			raw:       "s3:///gitgrid",
			wantErr:   true,
			errSubstr: "missing bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3BucketURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstr != "" && !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3BucketURL error: %v", err)
			}
			if gotBkt != tt.wantBkt || gotPre != tt.wantPre {
				t.Fatalf("got (%q, %q), want (%q, %q)", gotBkt, gotPre, tt.wantBkt, tt.wantPre)
			}
		})
	}
}

func TestSplitEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		endpoint   string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{"", false, defaultS3Endpoint, true},
		{"minio.local:9000", false, "minio.local:9000", false},
		{"minio.local:9000/", true, "minio.local:9000", true},
		{"http://minio.local:9000", true, "minio.local:9000", false},
		{"https://s3.eu-west-1.amazonaws.com", false, "s3.eu-west-1.amazonaws.com", true},
	}
	for _, tt := range tests {
		host, secure, err := splitEndpoint(tt.endpoint, tt.useSSL)
		if err != nil {
			t.Fatalf("splitEndpoint(%q): %v", tt.endpoint, err)
		}
		if host != tt.wantHost || secure != tt.wantSecure {
			t.Errorf("splitEndpoint(%q, %v) = (%q, %v), want (%q, %v)",
				tt.endpoint, tt.useSSL, host, secure, tt.wantHost, tt.wantSecure)
		}
	}
}

func TestNewS3Uploader(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader(S3Config{
		BucketURL: "s3://my-bucket/gitgrid",
		Endpoint:  "s3.amazonaws.com",
		UseSSL:    true,
	})
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}

	u, err := NewS3Uploader(S3Config{
		BucketURL: "s3://my-bucket/gitgrid",
		Endpoint:  "http://localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	if err != nil {
		t.Fatalf("NewS3Uploader: %v", err)
	}
	if got := u.objectKey("/var/backups/records-20240101-000000.duckdb"); got != "gitgrid/records-20240101-000000.duckdb" {
		t.Fatalf("objectKey = %q", got)
	}
}

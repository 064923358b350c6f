package gcs

import "testing"

func TestPublicURL(t *testing.T) {
	client := &Client{
		defaultBucket: "shopline-media",
		publicBaseURL: "https://storage.googleapis.com",
	}

	cases := []struct {
		name string
		path string
		want string
	}{
		{
			name: "simple object",
			path: "products/p1.jpg",
			want: "https://storage.googleapis.com/shopline-media/products/p1.jpg",
		},
		{
			name: "object with spaces",
			path: "products/my image.jpg",
			want: "https://storage.googleapis.com/shopline-media/products/my%20image.jpg",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := client.PublicURL(tc.path); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

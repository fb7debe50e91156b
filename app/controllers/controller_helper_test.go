package controllers

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestGetClientIP(t *testing.T) {
	app := fiber.New()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "cloudflare header wins",
			headers: map[string]string{"CF-Connecting-IP": "203.0.113.7", "X-Forwarded-For": "10.0.0.1"},
			want:    "203.0.113.7",
		},
		{
			name:    "first forwarded-for entry",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1, 172.16.0.1"},
			want:    "203.0.113.9",
		},
		{
			name:    "forwarded-for entry is trimmed",
			headers: map[string]string{"X-Forwarded-For": "  203.0.113.10  "},
			want:    "203.0.113.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := app.AcquireCtx(&fasthttp.RequestCtx{})
			defer app.ReleaseCtx(c)

			for k, v := range tt.headers {
				c.Request().Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(c))
		})
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package config

import (
	"net/url"
	"reflect"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const mask = "********"

// Redacted returns a copy with secrets masked and credentials stripped from
// connection URLs.
func (c Config) Redacted() Config {
	out := c
	out.HTTP.CORSOrigins = append([]string(nil), c.HTTP.CORSOrigins...)
	out.HTTP.TrustedProxies = append([]string(nil), c.HTTP.TrustedProxies...)
	out.Token.Secret = maskSecret(c.Token.Secret)
	out.Reset.Secret = maskSecret(c.Reset.Secret)
	out.Auth.BootstrapToken = maskSecret(c.Auth.BootstrapToken)
	out.Redis.Password = maskSecret(c.Redis.Password)
	out.Database.URL = stripPassword(c.Database.URL)
	out.Mongo.URI = stripPassword(c.Mongo.URI)
	out.AMQP.URL = stripPassword(c.AMQP.URL)
	return out
}

// YAML renders the redacted configuration with the same keys Load reads.
func (c Config) YAML() ([]byte, error) {
	tree := toMap(reflect.ValueOf(c.Redacted()))
	out, err := yaml.Marshal(tree)
	if err != nil {
		return nil, oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	return out, nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return mask
}

func stripPassword(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return mask
	}
	if u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), mask)
	}
	return u.String()
}

var durationType = reflect.TypeOf(time.Duration(0))

// toMap walks a struct by its koanf tags.
func toMap(v reflect.Value) map[string]any {
	out := make(map[string]any, v.NumField())
	t := v.Type()
	for i := range t.NumField() {
		key := t.Field(i).Tag.Get("koanf")
		if key == "" {
			continue
		}
		out[key] = toValue(v.Field(i))
	}
	return out
}

func toValue(f reflect.Value) any {
	switch {
	case f.Type() == durationType:
		return time.Duration(f.Int()).String()
	case f.Kind() == reflect.Struct:
		return toMap(f)
	case f.Kind() == reflect.Slice && f.IsNil():
		return []any{}
	default:
		return f.Interface()
	}
}

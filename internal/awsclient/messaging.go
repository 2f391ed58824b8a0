// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package awsclient

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ClientOption narrows a messaging or parameter client to a region or role.
type ClientOption func(*clientConfig)

type clientConfig struct {
	Region  string
	RoleARN string
}

func WithClientRegion(region string) ClientOption {
	return func(c *clientConfig) {
		c.Region = region
	}
}

func WithClientRole(roleARN string) ClientOption {
	return func(c *clientConfig) {
		c.RoleARN = roleARN
	}
}

func (m *Manager) resolveClientOptions(opts []ClientOption) clientConfig {
	var cc clientConfig
	for _, o := range opts {
		o(&cc)
	}
	return cc
}

func (m *Manager) GetSNS(ctx context.Context, opts ...ClientOption) *sns.Client {
	cc := m.resolveClientOptions(opts)
	return sns.NewFromConfig(m.configFor(cc.Region, cc.RoleARN))
}

func (m *Manager) GetSQS(ctx context.Context, opts ...ClientOption) *sqs.Client {
	cc := m.resolveClientOptions(opts)
	return sqs.NewFromConfig(m.configFor(cc.Region, cc.RoleARN))
}

func (m *Manager) GetSSM(ctx context.Context, opts ...ClientOption) *ssm.Client {
	cc := m.resolveClientOptions(opts)
	return ssm.NewFromConfig(m.configFor(cc.Region, cc.RoleARN))
}

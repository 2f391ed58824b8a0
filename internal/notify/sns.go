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

package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
)

// SNSPublishAPI is the slice of the SNS client used here.
type SNSPublishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSTransport struct {
	client   SNSPublishAPI
	topicARN string
	fifo     bool
}

func NewSNSTransport(client SNSPublishAPI, topicARN string) (*SNSTransport, error) {
	if topicARN == "" {
		return nil, errors.New("sns transport requires a topic ARN")
	}
	return &SNSTransport{
		client:   client,
		topicARN: topicARN,
		fifo:     strings.HasSuffix(topicARN, ".fifo"),
	}, nil
}

func (t *SNSTransport) Name() string { return "sns" }

func (t *SNSTransport) Send(ctx context.Context, msg Message) error {
	in := &sns.PublishInput{
		TopicArn: aws.String(t.topicARN),
		Message:  aws.String(string(msg.Body)),
	}
	if msg.Subject != "" {
		in.Subject = aws.String(msg.Subject)
	}
	if t.fifo {
		in.MessageGroupId = aws.String(msg.GroupKey)
		in.MessageDeduplicationId = aws.String(uuid.NewString())
	}
	_, err := t.client.Publish(ctx, in)
	return err
}

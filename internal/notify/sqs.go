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
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

// SQSSendAPI is the slice of the SQS client used here.
type SQSSendAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type SQSTransport struct {
	client   SQSSendAPI
	queueURL string
	fifo     bool
}

func NewSQSTransport(client SQSSendAPI, queueURL string) (*SQSTransport, error) {
	if queueURL == "" {
		return nil, errors.New("sqs transport requires a queue URL")
	}
	return &SQSTransport{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}, nil
}

func (t *SQSTransport) Name() string { return "sqs" }

func (t *SQSTransport) Send(ctx context.Context, msg Message) error {
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(msg.Body)),
	}
	if msg.Subject != "" {
		in.MessageAttributes = map[string]types.MessageAttributeValue{
			"Subject": {DataType: aws.String("String"), StringValue: aws.String(msg.Subject)},
		}
	}
	if t.fifo {
		in.MessageGroupId = aws.String(msg.GroupKey)
		in.MessageDeduplicationId = aws.String(uuid.NewString())
	}
	_, err := t.client.SendMessage(ctx, in)
	return err
}

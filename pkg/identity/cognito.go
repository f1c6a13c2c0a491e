// Package identity removes accounts from the identity provider.
package identity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"go.uber.org/zap"
)

// AdminDeleter is the subset of the Cognito API used here.
type AdminDeleter interface {
	AdminDeleteUser(ctx context.Context, params *cognitoidentityprovider.AdminDeleteUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminDeleteUserOutput, error)
}

// Cognito deletes users from a user pool.
type Cognito struct {
	client     AdminDeleter
	userPoolID string
	logger     *zap.Logger
}

// NewCognito creates a deleter. An empty userPoolID turns DeleteUser into a no-op.
func NewCognito(client AdminDeleter, userPoolID string, logger *zap.Logger) *Cognito {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cognito{client: client, userPoolID: userPoolID, logger: logger}
}

// DeleteUser removes the account whose username is userID.
func (c *Cognito) DeleteUser(ctx context.Context, userID string) error {
	if c.userPoolID == "" || c.client == nil {
		c.logger.Debug("identity provider deletion skipped: no user pool configured", zap.String("user_id", userID))
		return nil
	}
	_, err := c.client.AdminDeleteUser(ctx, &cognitoidentityprovider.AdminDeleteUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(userID),
	})
	if err != nil {
		return fmt.Errorf("cognito admin delete user: %w", err)
	}
	return nil
}

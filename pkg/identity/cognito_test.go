package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/stretchr/testify/assert"
)

type fakeCognito struct {
	in  *cognitoidentityprovider.AdminDeleteUserInput
	err error
}

func (f *fakeCognito) AdminDeleteUser(_ context.Context, in *cognitoidentityprovider.AdminDeleteUserInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminDeleteUserOutput, error) {
	f.in = in
	return &cognitoidentityprovider.AdminDeleteUserOutput{}, f.err
}

func TestDeleteUser(t *testing.T) {
	f := &fakeCognito{}
	err := NewCognito(f, "pool-1", nil).DeleteUser(context.Background(), "user-1")
	assert.NoError(t, err)
	assert.Equal(t, "pool-1", aws.ToString(f.in.UserPoolId))
	assert.Equal(t, "user-1", aws.ToString(f.in.Username))
}

func TestDeleteUserWithoutPool(t *testing.T) {
	f := &fakeCognito{}
	assert.NoError(t, NewCognito(f, "", nil).DeleteUser(context.Background(), "user-1"))
	assert.Nil(t, f.in)
}

func TestDeleteUserWrapsError(t *testing.T) {
	f := &fakeCognito{err: errors.New("UserNotFoundException")}
	err := NewCognito(f, "pool-1", nil).DeleteUser(context.Background(), "user-1")
	assert.ErrorContains(t, err, "UserNotFoundException")
}

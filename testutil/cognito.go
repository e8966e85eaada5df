package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// FakeUser is a user held by FakeCognito.
type FakeUser struct {
	Username   string
	Password   string
	Attributes map[string]string
	Confirmed  bool
}

// FakeCognito is an in-memory user pool. Every user's confirmation code is Code.
type FakeCognito struct {
	mu    sync.Mutex
	Users map[string]*FakeUser
	Code  string

	// Errors forces an operation ("SignUp", "ListUsers", ...) to fail.
	Errors map[string]error
	Calls  []string
}

func NewFakeCognito() *FakeCognito {
	return &FakeCognito{Users: map[string]*FakeUser{}, Code: "123456", Errors: map[string]error{}}
}

func (f *FakeCognito) enter(op string) error {
	f.Calls = append(f.Calls, op)
	return f.Errors[op]
}

func (f *FakeCognito) user(username string) (*FakeUser, error) {
	u, ok := f.Users[username]
	if !ok {
		return nil, &ciptypes.UserNotFoundException{Message: aws.String("User does not exist.")}
	}
	return u, nil
}

func (f *FakeCognito) SignUp(_ context.Context, in *cip.SignUpInput, _ ...func(*cip.Options)) (*cip.SignUpOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SignUp"); err != nil {
		return nil, err
	}
	username := aws.ToString(in.Username)
	if _, exists := f.Users[username]; exists {
		return nil, &ciptypes.UsernameExistsException{Message: aws.String("User already exists")}
	}
	attrs := map[string]string{}
	for _, a := range in.UserAttributes {
		attrs[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}
	f.Users[username] = &FakeUser{Username: username, Password: aws.ToString(in.Password), Attributes: attrs}
	return &cip.SignUpOutput{UserConfirmed: false, UserSub: aws.String("sub-" + username)}, nil
}

func (f *FakeCognito) AdminConfirmSignUp(_ context.Context, in *cip.AdminConfirmSignUpInput, _ ...func(*cip.Options)) (*cip.AdminConfirmSignUpOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AdminConfirmSignUp"); err != nil {
		return nil, err
	}
	u, err := f.user(aws.ToString(in.Username))
	if err != nil {
		return nil, err
	}
	u.Confirmed = true
	return &cip.AdminConfirmSignUpOutput{}, nil
}

func (f *FakeCognito) AdminUpdateUserAttributes(_ context.Context, in *cip.AdminUpdateUserAttributesInput, _ ...func(*cip.Options)) (*cip.AdminUpdateUserAttributesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AdminUpdateUserAttributes"); err != nil {
		return nil, err
	}
	u, err := f.user(aws.ToString(in.Username))
	if err != nil {
		return nil, err
	}
	for _, a := range in.UserAttributes {
		u.Attributes[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}
	return &cip.AdminUpdateUserAttributesOutput{}, nil
}

func (f *FakeCognito) ConfirmSignUp(_ context.Context, in *cip.ConfirmSignUpInput, _ ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ConfirmSignUp"); err != nil {
		return nil, err
	}
	u, err := f.user(aws.ToString(in.Username))
	if err != nil {
		return nil, err
	}
	if aws.ToString(in.ConfirmationCode) != f.Code {
		return nil, &ciptypes.CodeMismatchException{Message: aws.String("Invalid verification code provided, please try again.")}
	}
	u.Confirmed = true
	return &cip.ConfirmSignUpOutput{}, nil
}

func (f *FakeCognito) ResendConfirmationCode(_ context.Context, in *cip.ResendConfirmationCodeInput, _ ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ResendConfirmationCode"); err != nil {
		return nil, err
	}
	u, err := f.user(aws.ToString(in.Username))
	if err != nil {
		return nil, err
	}
	return &cip.ResendConfirmationCodeOutput{CodeDeliveryDetails: &ciptypes.CodeDeliveryDetailsType{
		AttributeName:  aws.String("email"),
		DeliveryMedium: ciptypes.DeliveryMediumTypeEmail,
		Destination:    aws.String(maskEmail(u.Attributes["email"])),
	}}, nil
}

// ListUsers supports filters of the form `attr = "value"`.
func (f *FakeCognito) ListUsers(_ context.Context, in *cip.ListUsersInput, _ ...func(*cip.Options)) (*cip.ListUsersOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListUsers"); err != nil {
		return nil, err
	}
	attr, value, _ := strings.Cut(aws.ToString(in.Filter), "=")
	attr = strings.TrimSpace(attr)
	value = strings.Trim(strings.TrimSpace(value), `"`)

	out := &cip.ListUsersOutput{}
	for _, u := range f.Users {
		if attr != "" && !strings.EqualFold(u.Attributes[attr], value) {
			continue
		}
		ut := ciptypes.UserType{Username: aws.String(u.Username)}
		for k, v := range u.Attributes {
			ut.Attributes = append(ut.Attributes, ciptypes.AttributeType{Name: aws.String(k), Value: aws.String(v)})
		}
		out.Users = append(out.Users, ut)
	}
	return out, nil
}

func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

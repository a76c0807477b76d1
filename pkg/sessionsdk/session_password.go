package sessionsdk

import (
	"context"
)

// UpdatePassword changes the signed-in user's password. The call is
// authenticated and goes through the session transport.
func (c *Client) UpdatePassword(ctx context.Context, current, next string) error {
	return c.postAuthorized(ctx, "change-password", PathChangePassword,
		ChangePasswordRequest{CurrentPassword: current, NewPassword: next}, nil, msgChangePasswordFailed)
}

// RequestPasswordReset asks the issuer to send a reset token to email.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.postIssuer(ctx, "forgot-password", PathForgotPassword, "",
		ForgotPasswordRequest{Email: email}, nil, msgForgotPasswordFailed)
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, next string) error {
	return c.postIssuer(ctx, "reset-password", PathResetPassword, "",
		ResetPasswordRequest{Token: token, NewPassword: next}, nil, msgResetPasswordFailed)
}

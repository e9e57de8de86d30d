// Package enrich fills identity fields on outbound payloads.
//
// Every function returns a copy and only fills fields the caller left unset,
// so applying it twice gives the same result as applying it once.
package enrich

import (
	"github.com/c360studio/feddy/api"
	"github.com/c360studio/feddy/identity"
)

// AnonymousUserID is used for submissions when no user id is known.
const AnonymousUserID = "anonymous"

// Submission fills metadata.userId, userName, userEmail and
// metadata.sdkVersion from user and sdkVersion when they are unset.
func Submission(p api.FeedbackSubmission, user identity.User, sdkVersion string) api.FeedbackSubmission {
	if p.Metadata.UserID == "" {
		p.Metadata.UserID = user.ID
		if p.Metadata.UserID == "" {
			p.Metadata.UserID = AnonymousUserID
		}
	}
	if p.UserName == nil {
		p.UserName = api.String(user.Name)
	}
	if p.UserEmail == nil {
		p.UserEmail = api.String(user.Email)
	}
	if p.Metadata.SDKVersion == nil || *p.Metadata.SDKVersion == "" {
		p.Metadata.SDKVersion = api.String(sdkVersion)
	}
	return p
}

// Vote fills the voter identity. The user id stays empty if user has none.
func Vote(req api.VoteRequest, user identity.User) api.VoteRequest {
	if req.UserID == "" {
		req.UserID = user.ID
	}
	if req.UserName == nil {
		req.UserName = api.String(user.Name)
	}
	if req.UserEmail == nil {
		req.UserEmail = api.String(user.Email)
	}
	return req
}

// Comment fills the author identity. The user id stays empty if user has none.
func Comment(req api.CommentRequest, user identity.User) api.CommentRequest {
	if req.UserID == "" {
		req.UserID = user.ID
	}
	if req.UserName == nil {
		req.UserName = api.String(user.Name)
	}
	if req.UserEmail == nil {
		req.UserEmail = api.String(user.Email)
	}
	return req
}

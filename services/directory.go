package services

import (
	"context"
	"fmt"

	"flowboard/model"

	"cloud.google.com/go/firestore"
)

// FetchIdentities joins the Users directory with Profiles. A profile wins the
// display name and avatar; the directory wins the email.
func (b *FirestoreBackend) FetchIdentities(ctx context.Context, userIDs []string) ([]model.Identity, error) {
	users := map[string]*model.User{}
	err := queryIn(ctx, b.client.Collection(colUsers).Query, "userid", userIDs, func(doc *firestore.DocumentSnapshot) error {
		var u model.User
		if err := doc.DataTo(&u); err != nil {
			return err
		}
		users[u.UserID] = &u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	profiles := map[string]*model.Profile{}
	err = queryIn(ctx, b.client.Collection(colProfiles).Query, "userid", userIDs, func(doc *firestore.DocumentSnapshot) error {
		var p model.Profile
		if err := doc.DataTo(&p); err != nil {
			return err
		}
		profiles[p.UserID] = &p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	out := make([]model.Identity, 0, len(userIDs))
	for _, id := range userIDs {
		u, p := users[id], profiles[id]
		if u == nil && p == nil {
			continue
		}
		out = append(out, mergeIdentity(id, u, p))
	}
	return out, nil
}

func mergeIdentity(userID string, u *model.User, p *model.Profile) model.Identity {
	id := model.Identity{UserID: userID}
	if u != nil {
		id.DisplayName = u.Name
		id.Email = u.Email
		id.Avatar = u.Profile
	}
	if p != nil {
		if p.DisplayName != "" {
			id.DisplayName = p.DisplayName
		}
		if p.Avatar != "" {
			id.Avatar = p.Avatar
		}
	}
	return id
}

// GetUserDataByUserid loads one directory entry.
func GetUserDataByUserid(ctx context.Context, client *firestore.Client, userID string) (*model.User, error) {
	docs, err := client.Collection(colUsers).Where("userid", "==", userID).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	var u model.User
	if err := docs[0].DataTo(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

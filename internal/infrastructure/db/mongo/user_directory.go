package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

const collectionUsers = "users"

// UserDirectory serves API users from the users collection.
type UserDirectory struct {
	col *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{col: db.Collection(collectionUsers)}
}

type mongoPermission struct {
	ID   string `bson:"id"`
	Code string `bson:"code"`
	Name string `bson:"name"`
}

type mongoRole struct {
	ID          string            `bson:"id"`
	Name        string            `bson:"name"`
	Description string            `bson:"description,omitempty"`
	Permissions []mongoPermission `bson:"permissions"`
}

type mongoUser struct {
	ID           string      `bson:"_id"`
	Email        string      `bson:"email"`
	PasswordHash string      `bson:"password_hash"`
	FirstName    string      `bson:"first_name"`
	LastName     string      `bson:"last_name"`
	PhoneNumber  string      `bson:"phone_number,omitempty"`
	Roles        []mongoRole `bson:"roles"`
	IsActive     bool        `bson:"is_active"`
	DateJoined   int64       `bson:"date_joined"`
	LastLogin    int64       `bson:"last_login,omitempty"`
}

// EnsureIndexes creates the unique email index.
func (r *UserDirectory) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a directory user keyed by id.
func (r *UserDirectory) Upsert(ctx context.Context, u ports.DirectoryUser) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toMongoUser(u)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *UserDirectory) FindByEmail(ctx context.Context, email string) (*ports.DirectoryUser, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserDirectory) FindByID(ctx context.Context, id string) (*ports.DirectoryUser, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserDirectory) findOne(ctx context.Context, filter bson.M) (*ports.DirectoryUser, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var mu mongoUser
	if err := r.col.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return fromMongoUser(mu), nil
}

func toMongoUser(u ports.DirectoryUser) mongoUser {
	doc := mongoUser{
		ID:           u.User.ID,
		Email:        u.User.Email,
		PasswordHash: u.PasswordHash,
		FirstName:    u.User.FirstName,
		LastName:     u.User.LastName,
		PhoneNumber:  u.User.PhoneNumber,
		IsActive:     u.User.IsActive,
		DateJoined:   timeToUnix(u.User.DateJoined),
	}
	if u.User.LastLogin != nil {
		doc.LastLogin = timeToUnix(*u.User.LastLogin)
	}
	for _, role := range u.User.Roles {
		mr := mongoRole{ID: role.ID, Name: role.Name, Description: role.Description}
		for _, p := range role.Permissions {
			mr.Permissions = append(mr.Permissions, mongoPermission{ID: p.ID, Code: p.Code, Name: p.Name})
		}
		doc.Roles = append(doc.Roles, mr)
	}
	return doc
}

func fromMongoUser(mu mongoUser) *ports.DirectoryUser {
	u := domain.User{
		ID:          mu.ID,
		Email:       mu.Email,
		FirstName:   mu.FirstName,
		LastName:    mu.LastName,
		PhoneNumber: mu.PhoneNumber,
		IsActive:    mu.IsActive,
		DateJoined:  unixToTime(mu.DateJoined),
		Roles:       make([]domain.Role, 0, len(mu.Roles)),
	}
	if mu.LastLogin != 0 {
		t := unixToTime(mu.LastLogin)
		u.LastLogin = &t
	}
	for _, mr := range mu.Roles {
		role := domain.Role{ID: mr.ID, Name: mr.Name, Description: mr.Description, Permissions: []domain.Permission{}}
		for _, p := range mr.Permissions {
			role.Permissions = append(role.Permissions, domain.Permission{ID: p.ID, Code: p.Code, Name: p.Name})
		}
		u.Roles = append(u.Roles, role)
	}
	return &ports.DirectoryUser{User: u, PasswordHash: mu.PasswordHash}
}

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

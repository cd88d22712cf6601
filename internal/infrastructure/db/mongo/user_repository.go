package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/melkam/therapy-api/internal/core/domain"
)

const usersCollection = "users"

// UserRepository persists user credential and session state in MongoDB.
type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(usersCollection)}
}

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	FirstName    string             `bson:"first_name"`
	LastName     string             `bson:"last_name"`
	Role         string             `bson:"role"`

	IsEmailVerified         bool       `bson:"is_email_verified"`
	EmailVerificationToken  *string    `bson:"email_verification_token"`
	EmailVerificationExpiry *time.Time `bson:"email_verification_expiry"`
	PasswordResetToken      *string    `bson:"password_reset_token"`
	PasswordResetExpiry     *time.Time `bson:"password_reset_expiry"`
	RefreshToken            *string    `bson:"refresh_token"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toDoc(u *domain.User) userDoc {
	return userDoc{
		Email:                   u.Email,
		PasswordHash:            u.PasswordHash,
		FirstName:               u.FirstName,
		LastName:                u.LastName,
		Role:                    string(u.Role),
		IsEmailVerified:         u.IsEmailVerified,
		EmailVerificationToken:  u.EmailVerificationToken,
		EmailVerificationExpiry: u.EmailVerificationExpiry,
		PasswordResetToken:      u.PasswordResetToken,
		PasswordResetExpiry:     u.PasswordResetExpiry,
		RefreshToken:            u.RefreshToken,
		CreatedAt:               u.CreatedAt,
		UpdatedAt:               u.UpdatedAt,
	}
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:                      d.ID.Hex(),
		Email:                   d.Email,
		PasswordHash:            d.PasswordHash,
		FirstName:               d.FirstName,
		LastName:                d.LastName,
		Role:                    domain.Role(d.Role),
		IsEmailVerified:         d.IsEmailVerified,
		EmailVerificationToken:  d.EmailVerificationToken,
		EmailVerificationExpiry: d.EmailVerificationExpiry,
		PasswordResetToken:      d.PasswordResetToken,
		PasswordResetExpiry:     d.PasswordResetExpiry,
		RefreshToken:            d.RefreshToken,
		CreatedAt:               d.CreatedAt.UTC(),
		UpdatedAt:               d.UpdatedAt.UTC(),
	}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.coll.InsertOne(ctx, toDoc(user))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	created := *user
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		created.ID = oid.Hex()
	}
	return &created, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByPasswordResetToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"password_reset_token": token})
}

func (r *UserRepository) FindByRefreshToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"refresh_token": token})
}

// Update writes the full credential/token field set in one single-record
// operation, matching the atomicity the service layer assumes.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		return domain.ErrUserNotFound
	}

	update := bson.M{"$set": bson.M{
		"password_hash":             user.PasswordHash,
		"is_email_verified":         user.IsEmailVerified,
		"email_verification_token":  user.EmailVerificationToken,
		"email_verification_expiry": user.EmailVerificationExpiry,
		"password_reset_token":      user.PasswordResetToken,
		"password_reset_expiry":     user.PasswordResetExpiry,
		"refresh_token":             user.RefreshToken,
		"updated_at":                user.UpdatedAt,
	}}

	res, err := r.coll.UpdateByID(ctx, oid, update)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ClearExpiredVerificationTokens scrubs stale codes for unverified users in a
// single bulk update. The predicate only ever narrows, so concurrent runs are
// safe.
func (r *UserRepository) ClearExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"is_email_verified":         false,
		"email_verification_expiry": bson.M{"$lt": now},
	}
	update := bson.M{"$set": bson.M{
		"email_verification_token":  nil,
		"email_verification_expiry": nil,
		"updated_at":                now,
	}}

	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("clear expired verification tokens: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cur.Close(ctx)

	var users []*domain.User
	for cur.Next(ctx) {
		var d userDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		users = append(users, d.toDomain())
	}
	return users, cur.Err()
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var d userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return d.toDomain(), nil
}

// EnsureIndexes creates the indexes the repository queries rely on.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "password_reset_token", Value: 1}}},
		{Keys: bson.D{{Key: "refresh_token", Value: 1}}},
		{Keys: bson.D{{Key: "email_verification_expiry", Value: 1}}},
	}

	_, err := r.coll.Indexes().CreateMany(ctx, indexes)
	return err
}

package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Feustey/Dazlng-sub004/internal/domain"
)

const (
	otpCodesCollection      = "otp_codes"
	emailTrackingCollection = "email_tracking"
)

// otpCodeDocument guarda expires_at en epoch millis.
type otpCodeDocument struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	Code      string    `bson:"code"`
	ExpiresAt int64     `bson:"expires_at"`
	Used      bool      `bson:"used"`
	Attempts  int       `bson:"attempts"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d otpCodeDocument) toDomain() domain.OTPCode {
	return domain.OTPCode{
		ID:        d.ID,
		Email:     d.Email,
		Code:      d.Code,
		ExpiresAt: time.UnixMilli(d.ExpiresAt).UTC(),
		Used:      d.Used,
		Attempts:  d.Attempts,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

type emailTrackingDocument struct {
	Email            string    `bson:"_id"`
	FirstSeenAt      time.Time `bson:"first_seen_at"`
	LastSeenAt       time.Time `bson:"last_seen_at"`
	TotalLogins      int       `bson:"total_logins"`
	ConversionStatus string    `bson:"conversion_status"`
	MarketingConsent bool      `bson:"marketing_consent"`
	Source           string    `bson:"source"`
	Notes            string    `bson:"notes"`
}

func (d emailTrackingDocument) toDomain() (domain.EmailTracking, error) {
	status, err := domain.ParseConversionStatus(d.ConversionStatus)
	if err != nil {
		return domain.EmailTracking{}, err
	}
	return domain.EmailTracking{
		Email:            d.Email,
		FirstSeenAt:      d.FirstSeenAt.UTC(),
		LastSeenAt:       d.LastSeenAt.UTC(),
		TotalLogins:      d.TotalLogins,
		ConversionStatus: status,
		MarketingConsent: d.MarketingConsent,
		Source:           d.Source,
		Notes:            d.Notes,
	}, nil
}

// EnsureMongoIndexes crea los indices de los que dependen los invariantes.
// El indice parcial unico garantiza un solo codigo activo por email.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(otpCodesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName("otp_codes_one_active_per_email").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"used": false}),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("otp_codes_email_created_at"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("otp_codes_expires_at"),
		},
	})
	return err
}

// MongoOTPCodeRepository implementa OTPCodeRepository sobre MongoDB.
type MongoOTPCodeRepository struct {
	coll *mongo.Collection
}

func NewMongoOTPCodeRepository(db *mongo.Database) *MongoOTPCodeRepository {
	return &MongoOTPCodeRepository{coll: db.Collection(otpCodesCollection)}
}

func (r *MongoOTPCodeRepository) Create(ctx context.Context, code domain.OTPCode) error {
	doc := otpCodeDocument{
		ID:        code.ID,
		Email:     code.Email,
		Code:      code.Code,
		ExpiresAt: code.ExpiresAt.UnixMilli(),
		Used:      code.Used,
		Attempts:  code.Attempts,
		CreatedAt: code.CreatedAt,
	}
	// Sin transacciones multi-documento: el indice parcial rechaza el segundo activo
	// y se reintenta una vez tras invalidar.
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if _, err = r.InvalidateActive(ctx, code.Email); err != nil {
			return err
		}
		if _, err = r.coll.InsertOne(ctx, doc); err == nil || !mongo.IsDuplicateKeyError(err) {
			return err
		}
	}
	return err
}

func (r *MongoOTPCodeRepository) InvalidateActive(ctx context.Context, email string) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"email": email, "used": false},
		bson.M{"$set": bson.M{"used": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoOTPCodeRepository) FindLatestActive(ctx context.Context, email, code string) (domain.OTPCode, error) {
	var doc otpCodeDocument
	err := r.coll.FindOne(ctx,
		bson.M{"email": email, "code": code, "used": false},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.OTPCode{}, ErrNotFound
	}
	if err != nil {
		return domain.OTPCode{}, err
	}
	return doc.toDomain(), nil
}

func (r *MongoOTPCodeRepository) Consume(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "used": false},
		bson.M{"$set": bson.M{"used": true}, "$inc": bson.M{"attempts": 1}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoOTPCodeRepository) Expire(ctx context.Context, id string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"used": true}})
	return err
}

func (r *MongoOTPCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now.UnixMilli()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// MongoEmailTrackingRepository implementa EmailTrackingRepository sobre MongoDB.
type MongoEmailTrackingRepository struct {
	coll *mongo.Collection
}

func NewMongoEmailTrackingRepository(db *mongo.Database) *MongoEmailTrackingRepository {
	return &MongoEmailTrackingRepository{coll: db.Collection(emailTrackingCollection)}
}

func (r *MongoEmailTrackingRepository) GetByEmail(ctx context.Context, email string) (domain.EmailTracking, error) {
	var doc emailTrackingDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.EmailTracking{}, ErrNotFound
	}
	if err != nil {
		return domain.EmailTracking{}, err
	}
	return doc.toDomain()
}

func (r *MongoEmailTrackingRepository) Create(ctx context.Context, t domain.EmailTracking) (bool, error) {
	_, err := r.coll.InsertOne(ctx, emailTrackingDocument{
		Email:            t.Email,
		FirstSeenAt:      t.FirstSeenAt,
		LastSeenAt:       t.LastSeenAt,
		TotalLogins:      t.TotalLogins,
		ConversionStatus: string(t.ConversionStatus),
		MarketingConsent: t.MarketingConsent,
		Source:           t.Source,
		Notes:            t.Notes,
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *MongoEmailTrackingRepository) Touch(ctx context.Context, email string, seenAt time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": email},
		bson.M{"$max": bson.M{"last_seen_at": seenAt}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoEmailTrackingRepository) IncrementLogins(ctx context.Context, email string, seenAt time.Time) (domain.EmailTracking, error) {
	var doc emailTrackingDocument
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": email},
		bson.M{
			"$inc": bson.M{"total_logins": 1},
			"$max": bson.M{"last_seen_at": seenAt},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.EmailTracking{}, ErrNotFound
	}
	if err != nil {
		return domain.EmailTracking{}, err
	}
	return doc.toDomain()
}

func (r *MongoEmailTrackingRepository) UpdateStatus(ctx context.Context, email string, from []domain.ConversionStatus, to domain.ConversionStatus, note string) (bool, error) {
	filter := bson.M{"_id": email}
	if len(from) > 0 {
		filter["conversion_status"] = bson.M{"$in": statusStrings(from)}
	}

	set := bson.D{{Key: "conversion_status", Value: string(to)}}
	if note != "" {
		// $literal evita que una nota empezada por "$" se lea como ruta de campo.
		set = append(set, bson.E{Key: "notes", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$notes", ""}}}, ""}}},
			bson.D{{Key: "$literal", Value: note}},
			bson.D{{Key: "$concat", Value: bson.A{"$notes", "\n", bson.D{{Key: "$literal", Value: note}}}}},
		}}}})
	}
	update := mongo.Pipeline{{{Key: "$set", Value: set}}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

package users

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgAuth "github.com/locallink/locallink-backend/pkg/auth"
	"github.com/locallink/locallink-backend/pkg/auth/session"
	"github.com/locallink/locallink-backend/pkg/config"
	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
	"github.com/locallink/locallink-backend/pkg/security"
)

const (
	invalidCredentialsMessage = "Incorrect credentials."

	defaultRating        = 5.0
	defaultPartnerRating = 4.8
	defaultVehicle       = "Two-wheeler"
)

type sessionManager interface {
	Start(ctx context.Context, accessID, actorID string, startedAt time.Time) error
	Revoke(ctx context.Context, accessID string) error
}

type notifier interface {
	Notify(ctx context.Context, actorID string, text string, kind enums.NotificationType, silent bool) error
}

// Service covers accounts: registration, login and profiles.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, phone, password string) (*AuthResult, error)
	Logout(ctx context.Context, accessID string) error
	Get(ctx context.Context, id string) (*models.Actor, error)
	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*models.Actor, error)
	SetVerified(ctx context.Context, id string, verified bool) (*models.Actor, error)
	List(ctx context.Context, role enums.ActorRole) ([]models.Actor, error)
}

// ServiceParams bundles the dependencies of the users service.
type ServiceParams struct {
	Store          docstore.Store
	Sessions       sessionManager
	Notifications  notifier
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Admin          config.AdminConfig
	Logger         *logger.Logger
}

type service struct {
	store    docstore.Store
	sessions sessionManager
	inbox    notifier
	jwtCfg   config.JWTConfig
	hasher   *security.Hasher
	admin    config.AdminConfig
	logg     *logger.Logger
	now      func() time.Time
	newID    func(role enums.ActorRole) string
}

// NewService constructs the users service. Notifications and Logger are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		store:    params.Store,
		sessions: params.Sessions,
		inbox:    params.Notifications,
		jwtCfg:   params.JWTConfig,
		hasher:   security.NewHasher(params.PasswordConfig),
		admin:    params.Admin,
		logg:     logg,
		now:      time.Now,
		newID:    newActorID,
	}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	if !input.Role.CanSelfRegister() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid account type")
	}
	phone := NormalizePhone(input.PhoneNumber)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone number is required")
	}
	if input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password is required")
	}
	if input.Password != input.ConfirmPassword {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Passwords do not match.")
	}
	if strings.TrimSpace(input.PinCode) == "" || strings.TrimSpace(input.City) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Fill essential fields.")
	}
	if phone == NormalizePhone(s.admin.Phone) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "Number already exists.")
	}

	existing, err := s.findByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "Number already exists.")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	actor := models.Actor{
		ID:           s.newID(input.Role),
		Role:         input.Role,
		Name:         strings.TrimSpace(input.Name),
		PhoneNumber:  phone,
		PasswordHash: hash,
		Address:      strings.TrimSpace(input.Address),
		PinCode:      strings.TrimSpace(input.PinCode),
		City:         strings.TrimSpace(input.City),
		Locality:     strings.TrimSpace(input.Locality),
		Rating:       defaultRating,
		CreatedAt:    s.now().UnixMilli(),
	}
	switch input.Role {
	case enums.ActorRoleShopOwner:
		actor.ShopName = firstNonEmpty(input.ShopName, input.Name)
		actor.Category = enums.NormalizeCategory(input.Category)
	case enums.ActorRoleDeliveryPartner:
		actor.Rating = defaultPartnerRating
		actor.VehicleType = firstNonEmpty(input.VehicleType, defaultVehicle)
	}
	if actor.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	fields, err := docstore.Fields(actor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode profile")
	}
	if _, err := s.store.Write(ctx, docstore.CollectionUsers, actor.ID, fields, docstore.IfAbsent()); err != nil {
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "account already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save profile")
	}
	s.logg.Info(s.logg.WithActorID(ctx, actor.ID), "users.registered")
	return s.startSession(ctx, actor)
}

func (s *service) Login(ctx context.Context, phone, password string) (*AuthResult, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if s.isAdminLogin(normalized, password) {
		return s.startSession(ctx, s.adminProfile())
	}

	actor, err := s.findByPhone(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	valid, stale, err := s.hasher.Verify(password, actor.PasswordHash)
	if err != nil || !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if stale {
		s.upgradeHash(ctx, actor, password)
	}
	return s.startSession(ctx, *actor)
}

// upgradeHash re-hashes under the current cost after a successful login. It
// only replaces the hash that was just verified; failures are logged and the
// login proceeds.
func (s *service) upgradeHash(ctx context.Context, actor *models.Actor, password string) {
	ctx = s.logg.WithActorID(ctx, actor.ID)
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logg.Error(ctx, "users.login.rehash_failed", err)
		return
	}
	_, err = s.store.Write(ctx, docstore.CollectionUsers, actor.ID,
		map[string]any{"passwordHash": hash},
		docstore.When("passwordHash", actor.PasswordHash))
	if err != nil && !errors.Is(err, docstore.ErrPreconditionFailed) {
		s.logg.Error(ctx, "users.login.rehash_failed", err)
		return
	}
	s.logg.Info(ctx, "users.login.rehashed")
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if err := s.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) isAdminLogin(phone, password string) bool {
	if s.admin.Secret == "" || phone != NormalizePhone(s.admin.Phone) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(s.admin.Secret)) == 1
}

func (s *service) adminProfile() models.Actor {
	return models.Actor{
		ID:          s.admin.ID,
		Role:        enums.ActorRoleAdmin,
		Name:        s.admin.Name,
		PhoneNumber: s.admin.Phone,
		PinCode:     "000000",
		City:        s.admin.City,
		Rating:      defaultRating,
	}
}

func (s *service) startSession(ctx context.Context, actor models.Actor) (*AuthResult, error) {
	now := s.now().UTC()
	accessID := session.NewAccessID()
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		ActorID:      actor.ID,
		Role:         actor.Role,
		JTI:          accessID,
		SessionStart: now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.sessions.Start(ctx, accessID, actor.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store session")
	}
	if s.inbox != nil {
		text := fmt.Sprintf("Market Link active for %s.", actor.Name)
		if err := s.inbox.Notify(ctx, actor.ID, text, enums.NotificationTypeSystem, true); err != nil {
			s.logg.Warn(s.logg.WithActorID(ctx, actor.ID), "users.login.notify_failed")
		}
	}
	return &AuthResult{AccessToken: token, SessionStart: now, User: actor.Public()}, nil
}

func (s *service) Get(ctx context.Context, id string) (*models.Actor, error) {
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if id == s.admin.ID {
		admin := s.adminProfile()
		return &admin, nil
	}
	actor, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	public := actor.Public()
	return &public, nil
}

// UpdateProfile merges the non-empty fields of patch into the profile. Role,
// phone number and rating aggregates are not editable.
func (s *service) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*models.Actor, error) {
	actor, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	set := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			fields[key] = v
		}
	}
	set("name", patch.Name)
	set("address", patch.Address)
	set("pinCode", patch.PinCode)
	set("city", patch.City)
	set("locality", patch.Locality)
	switch actor.Role {
	case enums.ActorRoleShopOwner:
		set("shopName", patch.ShopName)
		set("shopImage", patch.ShopImage)
		set("description", patch.Description)
		set("promoBanner", patch.PromoBanner)
		if strings.TrimSpace(patch.Category) != "" {
			fields["category"] = enums.NormalizeCategory(patch.Category)
		}
	case enums.ActorRoleDeliveryPartner:
		set("vehicleType", patch.VehicleType)
	}
	if len(fields) == 0 {
		public := actor.Public()
		return &public, nil
	}

	doc, err := s.store.Write(ctx, docstore.CollectionUsers, id, fields, docstore.When("role", actor.Role))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
	}
	return decodePublic(doc)
}

func (s *service) SetVerified(ctx context.Context, id string, verified bool) (*models.Actor, error) {
	if _, _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	doc, err := s.store.Write(ctx, docstore.CollectionUsers, id, map[string]any{"isVerified": verified})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update verification")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"user_id": id, "verified": verified}), "users.verification.changed")
	return decodePublic(doc)
}

// List returns profiles without credentials, newest first. An empty role
// lists everyone.
func (s *service) List(ctx context.Context, role enums.ActorRole) ([]models.Actor, error) {
	var filters []docstore.Filter
	if role != "" {
		if !role.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
		}
		filters = append(filters, docstore.Eq("role", role))
	}
	docs, err := s.store.LoadAll(ctx, docstore.CollectionUsers, filters...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	actors, errs := models.DecodeAll(docs, models.ActorFromDocument)
	for _, decodeErr := range errs {
		s.logg.Warn(s.logg.WithField(ctx, "error", decodeErr.Error()), "users.document.invalid")
	}
	for i := range actors {
		actors[i] = actors[i].Public()
	}
	sort.Slice(actors, func(i, j int) bool {
		if actors[i].CreatedAt != actors[j].CreatedAt {
			return actors[i].CreatedAt > actors[j].CreatedAt
		}
		return actors[i].ID < actors[j].ID
	})
	return actors, nil
}

func (s *service) load(ctx context.Context, id string) (models.Actor, int64, error) {
	doc, err := s.store.Get(ctx, docstore.CollectionUsers, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.Actor{}, 0, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
	}
	if err != nil {
		return models.Actor{}, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	actor, err := models.ActorFromDocument(*doc)
	if err != nil {
		return models.Actor{}, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored profile is invalid")
	}
	return actor, doc.Revision, nil
}

func (s *service) findByPhone(ctx context.Context, phone string) (*models.Actor, error) {
	docs, err := s.store.LoadAll(ctx, docstore.CollectionUsers, docstore.Eq("phoneNumber", phone))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	for _, doc := range docs {
		actor, err := models.ActorFromDocument(doc)
		if err != nil {
			continue
		}
		return &actor, nil
	}
	return nil, nil
}

func decodePublic(doc *docstore.Document) (*models.Actor, error) {
	actor, err := models.ActorFromDocument(*doc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored profile is invalid")
	}
	public := actor.Public()
	return &public, nil
}

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func newActorID(role enums.ActorRole) string {
	prefix := "cust_"
	switch role {
	case enums.ActorRoleShopOwner:
		prefix = "shop_"
	case enums.ActorRoleDeliveryPartner:
		prefix = "deliv_"
	}
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

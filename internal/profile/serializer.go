// Package profile はユーザープロフィールの表現と更新を提供する。
package profile

import (
	"net/url"
	"strconv"

	"github.com/hitoshi/five/internal/model"
)

// DefaultStaticURL は静的ファイルのベースURL。
const DefaultStaticURL = "/static/"

// InterestView は興味の表現。
type InterestView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ProfileSummary は常に含まれるプロフィール項目。
type ProfileSummary struct {
	ID            int64          `json:"id"`
	FirstName     string         `json:"first_name"`
	LastName      string         `json:"last_name"`
	Handle        string         `json:"handle"`
	Bio           string         `json:"bio"`
	Interests     []InterestView `json:"interests"`
	MeetNewPeople bool           `json:"meet_new_people"`
	Avatar        string         `json:"avatar"`
}

// ProfileDetail は詳細表示のプロフィール。
// 未チェックインの場合CurrentLocationはnullになる。
type ProfileDetail struct {
	ProfileSummary
	Connections     []int64          `json:"connections"`
	CurrentLocation *model.PlaceView `json:"current_location"`
}

// Serializer はUserProfileをレスポンス用の表現に変換する。
type Serializer struct {
	staticURL string
}

// NewSerializer はSerializerを生成する。staticURLが空の場合はDefaultStaticURLを使う。
func NewSerializer(staticURL string) *Serializer {
	if staticURL == "" {
		staticURL = DefaultStaticURL
	}
	return &Serializer{staticURL: staticURL}
}

// AvatarURL はユーザーIDから決まるアバター画像のURLを返す。
// 静的ファイルのベースURLに対する相対参照として解決する。
func (s *Serializer) AvatarURL(userID int64) string {
	ref := "core/img/" + strconv.FormatInt(userID, 10) + ".png"
	base, err := url.Parse(s.staticURL)
	if err != nil {
		return s.staticURL + ref
	}
	return base.ResolveReference(&url.URL{Path: ref}).String()
}

// Summary は要約表示のプロフィールを返す。
func (s *Serializer) Summary(p *model.UserProfile) ProfileSummary {
	interests := make([]InterestView, 0, len(p.Interests))
	for _, i := range p.Interests {
		interests = append(interests, InterestView{ID: i.ID, Name: i.Name})
	}
	return ProfileSummary{
		ID:            p.User.ID,
		FirstName:     p.User.FirstName,
		LastName:      p.User.LastName,
		Handle:        p.User.Username,
		Bio:           p.Bio,
		Interests:     interests,
		MeetNewPeople: p.MeetNewPeople,
		Avatar:        s.AvatarURL(p.User.ID),
	}
}

// Detail は接続先と現在地を含む詳細表示のプロフィールを返す。
func (s *Serializer) Detail(p *model.UserProfile) ProfileDetail {
	connections := p.ConnectionIDs
	if connections == nil {
		connections = []int64{}
	}
	d := ProfileDetail{
		ProfileSummary: s.Summary(p),
		Connections:    connections,
	}
	if p.CurrentLocation != nil {
		v := p.CurrentLocation.ToSerializable(true)
		d.CurrentLocation = &v
	}
	return d
}

// Serialize はdetailedに応じてSummaryかDetailを返す。
func (s *Serializer) Serialize(p *model.UserProfile, detailed bool) any {
	if detailed {
		return s.Detail(p)
	}
	return s.Summary(p)
}

// Package model はドメインモデルを定義する。
package model

// LatLng は緯度・経度の組を表す。
type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Viewport はプレイスのおおよその範囲を表す軸平行の矩形。
// 北東・南西の2隅で定義する。4座標は常にそろって存在する。
type Viewport struct {
	NorthEast LatLng
	SouthWest LatLng
}

// GeoPlace はチェックイン先となる物理的な場所を表す。
// IDは外部プレイスプロバイダが払い出した識別子で、ローカルでは生成しない。
// 作成後は更新も削除もされない。
type GeoPlace struct {
	ID          string
	Name        string
	Description string
	Location    LatLng
	Icon        string
	Viewport    *Viewport // nilの場合はビューポートなし
}

// ContainsPoint は(lat, lon)がこのプレイスの内側にあるかを判定する。
// ビューポートがない場合は保存された位置との完全一致で判定する。
// ビューポートがある場合は4辺を含む矩形判定を行う。
// 測地線の曲率と日付変更線は考慮しない（都市規模のプレイスでは十分な近似）。
func (p *GeoPlace) ContainsPoint(lat, lon float64) bool {
	if p.Viewport == nil {
		return lat == p.Location.Lat && lon == p.Location.Lon
	}
	ne, sw := p.Viewport.NorthEast, p.Viewport.SouthWest
	return sw.Lat <= lat && lat <= ne.Lat &&
		sw.Lon <= lon && lon <= ne.Lon
}

// PlaceSummary は位置情報を常に含むプレイスの表現。
// 周辺検索の結果として返す。
type PlaceSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    LatLng `json:"location"`
	Icon        string `json:"icon"`
}

// PlaceView はユーザー表現に埋め込むためのプレイスの表現。
// 詳細表示の場合のみ位置情報を含む。
type PlaceView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Location    *LatLng `json:"location,omitempty"`
}

// ToSummary は位置情報を含むPlaceSummaryに変換する。
func (p *GeoPlace) ToSummary() PlaceSummary {
	return PlaceSummary{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Location:    p.Location,
		Icon:        p.Icon,
	}
}

// ToSerializable はPlaceViewに変換する。
// detailedがfalseの場合は位置情報を含めず、埋め込み時の表現を小さく保つ。
func (p *GeoPlace) ToSerializable(detailed bool) PlaceView {
	v := PlaceView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Icon:        p.Icon,
	}
	if detailed {
		loc := p.Location
		v.Location = &loc
	}
	return v
}

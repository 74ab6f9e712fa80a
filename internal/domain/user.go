package domain

import "time"

type User struct {
	Base
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash"`
	DisplayName  string     `json:"display_name,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Bio          string     `json:"bio,omitempty"`
	Birthday     *time.Time `json:"birthday,omitempty"`
	Avatar       string     `json:"avatar,omitempty"`
	Online       bool       `json:"online"`
	LastSeen     time.Time  `json:"last_seen"`
}

// UserProfile - данные отправителя в рассылаемых сообщениях
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// UserView отдается через REST, без хэша пароля
type UserView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Bio         string     `json:"bio,omitempty"`
	Birthday    *time.Time `json:"birthday,omitempty"`
	Avatar      string     `json:"avatar,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Online      bool       `json:"online"`
	LastSeen    time.Time  `json:"last_seen"`
}

func (u *User) Profile() UserProfile {
	return UserProfile{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
}

func (u *User) View() UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Phone:       u.Phone,
		Bio:         u.Bio,
		Birthday:    u.Birthday,
		Avatar:      u.Avatar,
		Online:      u.Online,
		LastSeen:    u.LastSeen,
	}
}

type ProfileUpdate struct {
	DisplayName *string    `json:"display_name,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Bio         *string    `json:"bio,omitempty"`
	Birthday    *time.Time `json:"birthday,omitempty"`
	Avatar      *string    `json:"avatar,omitempty"`
}
